package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets the headers shared by every OAuth JSON response.
// HSTS is only sent when the issuer is served over HTTPS.
func SetSecurityHeaders(w http.ResponseWriter, issuer string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")

	if parsed, err := url.Parse(issuer); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}

// SetPageSecurityHeaders is SetSecurityHeaders for the HTML consent page, which
// uses an inline stylesheet. form-action is left unset: browsers apply it to the
// redirect that follows the form post, and that redirect targets the client.
func SetPageSecurityHeaders(w http.ResponseWriter, issuer string) {
	SetSecurityHeaders(w, issuer)
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'")
}
