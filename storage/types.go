package storage

import "time"

// PKCEMethodS256 is the only code challenge method the gateway accepts.
const PKCEMethodS256 = "S256"

// AuthorizationCode is a short-lived, single-use grant bound to a PKCE challenge.
type AuthorizationCode struct {
	Code                string   `json:"code"`
	ClientID            string   `json:"client_id"`
	UserID              string   `json:"user_id"`
	Scopes              []string `json:"scopes"`
	RedirectURI         string   `json:"redirect_uri"`
	CodeChallenge       string   `json:"code_challenge"`
	CodeChallengeMethod string   `json:"code_challenge_method"`
	ExpiresAt           int64    `json:"expires_at"` // unix seconds
}

// Expired reports whether the code's expiry has passed at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(time.Unix(c.ExpiresAt, 0))
}

// Token is the stored shape of both access tokens and refresh tokens.
type Token struct {
	Token     string   `json:"token"`
	UserID    string   `json:"user_id"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expires_at"` // unix seconds
}

// Expired reports whether the token's expiry has passed at now.
func (t *Token) Expired(now time.Time) bool {
	return now.After(time.Unix(t.ExpiresAt, 0))
}

// Client is a dynamically registered OAuth client (RFC 7591).
type Client struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
}
