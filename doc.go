// Package oauth is the HTTP surface of the MCP gateway's OAuth 2.1
// authorization server.
//
// Handler adapts HTTP requests onto the protocol logic in the server package:
//   - RFC 8414 authorization server metadata and RFC 9728 protected resource metadata
//   - The authorization endpoint, authenticating the resource owner either from an
//     identity header or through an interactive sign-in and consent page
//   - The token endpoint (authorization_code with PKCE S256, refresh_token with rotation)
//   - Dynamic client registration (RFC 7591)
//   - Bearer token middleware guarding the MCP endpoint
//
// Example usage:
//
//	srv, _ := server.New(store, store, store, &server.Config{Issuer: issuer}, logger)
//	h, _ := oauth.NewHandler(srv, oauth.HandlerConfig{AuthMode: oauth.AuthModeHeader}, logger)
//
//	mux := http.NewServeMux()
//	h.RegisterRoutes(mux, mcpHandler)
package oauth
