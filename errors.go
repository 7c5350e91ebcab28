package oauth

import "github.com/lsendel/llmrank-mcp-gateway/server"

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidGrant            = server.ErrorCodeInvalidGrant
	ErrorCodeInvalidScope            = server.ErrorCodeInvalidScope
	ErrorCodeInvalidToken            = server.ErrorCodeInvalidToken
	ErrorCodeInvalidRedirectURI      = server.ErrorCodeInvalidRedirectURI
	ErrorCodeUnsupportedGrantType    = server.ErrorCodeUnsupportedGrantType
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeAccessDenied            = server.ErrorCodeAccessDenied
	ErrorCodeServerError             = server.ErrorCodeServerError
	ErrorCodeRateLimitExceeded       = server.ErrorCodeRateLimitExceeded
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError = server.OAuthError

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return server.NewOAuthError(code, description, status)
}

// Common OAuth errors
var (
	ErrInvalidRequest          = server.ErrInvalidRequest
	ErrInvalidGrant            = server.ErrInvalidGrant
	ErrInvalidScope            = server.ErrInvalidScope
	ErrInvalidToken            = server.ErrInvalidToken
	ErrInvalidRedirectURI      = server.ErrInvalidRedirectURI
	ErrUnsupportedGrantType    = server.ErrUnsupportedGrantType
	ErrUnsupportedResponseType = server.ErrUnsupportedResponseType
	ErrAccessDenied            = server.ErrAccessDenied
	ErrServerError             = server.ErrServerError
	ErrRateLimitExceeded       = server.ErrRateLimitExceeded
)
