package providers

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors returned by IdentityProvider implementations. Callers map them
// to user-facing messages and must not reveal which one occurred beyond the
// failure class.
var (
	// ErrInvalidCredentials means the sign-in API rejected the email or password.
	// It never distinguishes an unknown account from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUpstream means the identity API was unreachable or failed.
	ErrUpstream = errors.New("identity provider unavailable")

	// ErrTokenIssuance means the session was valid but no API token could be minted.
	ErrTokenIssuance = errors.New("api token issuance failed")
)

// Session is the credential returned by a successful sign-in. Either the
// cookies, the bearer token, or both are set.
type Session struct {
	Cookies     []*http.Cookie
	BearerToken string
}

// Empty reports whether the session carries no usable credential.
func (s *Session) Empty() bool {
	return s == nil || (len(s.Cookies) == 0 && s.BearerToken == "")
}

// Apply attaches the session credential to an outbound request.
func (s *Session) Apply(req *http.Request) {
	if s == nil {
		return
	}
	for _, c := range s.Cookies {
		req.AddCookie(c)
	}
	if s.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.BearerToken)
	}
}

// IdentityProvider signs users in and mints API tokens on their behalf.
type IdentityProvider interface {
	// SignIn verifies email and password and returns a session credential.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// MintAPIToken creates a named API token for the signed-in user and returns
	// its plaintext value.
	MintAPIToken(ctx context.Context, session *Session, name string) (string, error)
}
