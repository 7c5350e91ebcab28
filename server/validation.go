package server

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// URI scheme constants
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// LoopbackHosts are the hostnames accepted on any scheme in redirect URIs.
var LoopbackHosts = []string{"localhost", "127.0.0.1"}

// validateHTTPSEnforcement rejects an http:// issuer outside loopback unless
// AllowInsecureHTTP is set.
func (s *Server) validateHTTPSEnforcement() error {
	if s.Config.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	issuerURL, err := url.Parse(s.Config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	switch issuerURL.Scheme {
	case SchemeHTTPS:
		return nil
	case SchemeHTTP:
		hostname := issuerURL.Hostname()
		if slices.Contains(LoopbackHosts, hostname) {
			s.Logger.Warn("DEVELOPMENT WARNING: Running OAuth over HTTP on localhost",
				"issuer", s.Config.Issuer)
			return nil
		}
		if !s.Config.AllowInsecureHTTP {
			return fmt.Errorf("issuer must use HTTPS (got %s://%s); set AllowInsecureHTTP for development only",
				issuerURL.Scheme, hostname)
		}
		s.Logger.Error("CRITICAL SECURITY WARNING: Running OAuth server over HTTP",
			"issuer", s.Config.Issuer,
			"hostname", hostname)
		return nil
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}
}

// ValidateRedirectURI accepts absolute https URIs and URIs on a loopback host
// with any scheme.
func ValidateRedirectURI(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() {
		return ErrInvalidRedirectURI(fmt.Sprintf("Invalid redirect URI: %s", redirectURI))
	}
	if u.Scheme == SchemeHTTPS || slices.Contains(LoopbackHosts, u.Hostname()) {
		return nil
	}
	return ErrInvalidRedirectURI(fmt.Sprintf("Redirect URI must use HTTPS or localhost: %s", redirectURI))
}

// ParseScope splits a space-delimited scope parameter, dropping duplicates
// while keeping the first-seen order.
func ParseScope(scope string) []string {
	fields := strings.Fields(scope)
	scopes := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(scopes, f) {
			scopes = append(scopes, f)
		}
	}
	return scopes
}

// JoinScopes renders scopes as a space-delimited scope parameter.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// validateScopes reports every requested scope outside the supported set.
func (s *Server) validateScopes(requested []string) error {
	var unsupported []string
	for _, scope := range requested {
		if !slices.Contains(s.Config.SupportedScopes, scope) {
			unsupported = append(unsupported, scope)
		}
	}
	if len(unsupported) > 0 {
		return ErrInvalidScope("Unsupported scopes: " + strings.Join(unsupported, ", "))
	}
	return nil
}
