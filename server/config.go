package server

import (
	"log/slog"
	"slices"
)

// Default lifetimes in seconds.
const (
	DefaultAuthorizationCodeTTL int64 = 600     // 10 minutes
	DefaultAccessTokenTTL       int64 = 3600    // 1 hour
	DefaultRefreshTokenTTL      int64 = 2592000 // 30 days

	// DefaultDirectTokenPrefix marks API tokens provisioned by the dashboard
	// that may be presented as bearer tokens without an OAuth exchange.
	DefaultDirectTokenPrefix = "llmr_"

	// WildcardScope is granted to direct API tokens.
	WildcardScope = "*"
)

// DefaultSupportedScopes is the fixed scope set advertised in metadata and
// accepted by the authorization endpoint. Registered clients depend on these
// exact strings.
var DefaultSupportedScopes = []string{
	"projects:read",
	"projects:write",
	"crawls:read",
	"crawls:write",
	"pages:read",
	"scores:read",
	"issues:read",
	"visibility:read",
	"visibility:write",
	"fixes:write",
	"strategy:read",
	"competitors:read",
	"keywords:write",
	"queries:write",
	"reports:write",
	"content:read",
	"technical:read",
}

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 2592000 (30 days)

	// SupportedScopes lists the scopes clients may request.
	// Default: DefaultSupportedScopes
	SupportedScopes []string

	// DirectTokenPrefix identifies API tokens that bypass the credential store
	// in bearer validation. Default: "llmr_"
	DirectTokenPrefix string

	// DisableDirectTokens turns the direct API token bypass off.
	DisableDirectTokens bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Default: 1
	TrustedProxyCount int

	// AllowInsecureHTTP permits an http:// issuer on a non-loopback host.
	AllowInsecureHTTP bool
}

// applyDefaults fills unset fields. The caller's Config is not modified.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	cfg := *config

	if cfg.AuthorizationCodeTTL <= 0 {
		cfg.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if len(cfg.SupportedScopes) == 0 {
		cfg.SupportedScopes = slices.Clone(DefaultSupportedScopes)
	}
	if cfg.DirectTokenPrefix == "" {
		cfg.DirectTokenPrefix = DefaultDirectTokenPrefix
	}
	if cfg.TrustedProxyCount <= 0 {
		cfg.TrustedProxyCount = 1
	}

	logSecurityWarnings(&cfg, logger)
	return &cfg
}

func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.TrustProxy {
		logger.Warn("SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"trusted_proxy_count", config.TrustedProxyCount)
	}
	if config.DisableDirectTokens {
		logger.Info("Direct API token authentication disabled")
	}
}
