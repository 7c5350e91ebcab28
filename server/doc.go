// Package server implements the OAuth 2.1 protocol state machine of the gateway.
//
// It is transport-agnostic: the root oauth package parses HTTP requests and
// renders responses, while this package validates requests, issues and redeems
// credentials and resolves bearer tokens against the credential store.
//
// The Server type covers:
//   - Token codec (GenerateToken, VerifyPKCEChallenge)
//   - Dynamic client registration (RFC 7591)
//   - Authorization request validation and code issuance with mandatory PKCE S256
//   - The token endpoint grants with single-use codes and refresh token rotation
//   - Access token validation, including directly provisioned API tokens
//
// Protocol failures are returned as *OAuthError. Any other error is a storage
// failure and should be reported to the client as server_error.
//
// Example usage:
//
//	kv := memory.New()
//	store := storage.NewCredentialStore(kv)
//
//	srv, err := server.New(store, store, store, &server.Config{
//	    Issuer: "https://mcp.example.com",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
