package security

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		issuer   string
		wantHSTS bool
	}{
		{name: "HTTPS issuer", issuer: "https://mcp.example.com", wantHSTS: true},
		{name: "HTTP issuer", issuer: "http://localhost:8080", wantHSTS: false},
		{name: "invalid URL", issuer: "://invalid", wantHSTS: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SetSecurityHeaders(w, tt.issuer)

			want := map[string]string{
				"X-Frame-Options":        "DENY",
				"X-Content-Type-Options": "nosniff",
				"Referrer-Policy":        "no-referrer",
				"Cache-Control":          "no-store",
				"Pragma":                 "no-cache",
			}
			for header, value := range want {
				if got := w.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}

			hsts := w.Header().Get("Strict-Transport-Security")
			if tt.wantHSTS && hsts == "" {
				t.Error("Strict-Transport-Security missing for HTTPS issuer")
			}
			if !tt.wantHSTS && hsts != "" {
				t.Errorf("Strict-Transport-Security = %q, want empty", hsts)
			}
		})
	}
}

func TestSetPageSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetPageSecurityHeaders(w, "https://mcp.example.com")

	csp := w.Header().Get("Content-Security-Policy")
	for _, directive := range []string{"style-src 'unsafe-inline'", "frame-ancestors 'none'"} {
		if !strings.Contains(csp, directive) {
			t.Errorf("CSP %q missing %q", csp, directive)
		}
	}
	if strings.Contains(csp, "script-src") {
		t.Errorf("CSP %q should not allow scripts", csp)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
