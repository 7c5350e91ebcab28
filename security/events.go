package security

// Audit event types.
const (
	// EventAuthorizationCodeIssued is logged when the authorization endpoint issues a code
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventTokenIssued is logged when a code is exchanged for a token pair
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is rotated into a new pair
	EventTokenRefreshed = "token_refreshed"

	// EventClientRegistered is logged when a client registers dynamically
	EventClientRegistered = "client_registered"

	// EventClientRegistrationRejected is logged when a registration fails redirect URI validation
	EventClientRegistrationRejected = "client_registration_rejected"

	// EventAuthFailure is logged when resource owner authentication fails
	EventAuthFailure = "auth_failure"

	// EventInvalidGrant is logged when a code or refresh token cannot be redeemed
	EventInvalidGrant = "invalid_grant"

	// EventPKCEValidationFailed is logged when a code_verifier does not match its challenge
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventInvalidRedirect is logged when a token request names a different redirect_uri
	EventInvalidRedirect = "invalid_redirect"

	// EventRateLimitExceeded is logged when a client IP exceeds its request budget
	EventRateLimitExceeded = "rate_limit_exceeded"
)
