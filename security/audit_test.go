package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newBufferedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestNewAuditor(t *testing.T) {
	tests := []struct {
		name    string
		logger  *slog.Logger
		enabled bool
	}{
		{name: "enabled with logger", logger: slog.Default(), enabled: true},
		{name: "disabled with logger", logger: slog.Default(), enabled: false},
		{name: "enabled with nil logger", logger: nil, enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := NewAuditor(tt.logger, tt.enabled)
			if auditor == nil {
				t.Fatal("NewAuditor() returned nil")
			}
			if auditor.enabled != tt.enabled {
				t.Errorf("enabled = %v, want %v", auditor.enabled, tt.enabled)
			}
			if auditor.logger == nil {
				t.Error("logger should not be nil")
			}
		})
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		auditor, buf := newBufferedAuditor(true)
		auditor.LogEvent(Event{Type: EventTokenIssued, UserID: "user-token", ClientID: "client_abc"})

		out := buf.String()
		if !strings.Contains(out, "security_audit") {
			t.Errorf("log output missing message: %s", out)
		}
		if !strings.Contains(out, "event_type="+EventTokenIssued) {
			t.Errorf("log output missing event type: %s", out)
		}
		if strings.Contains(out, "user-token") {
			t.Errorf("raw user ID leaked into log: %s", out)
		}
		if !strings.Contains(out, hashForLogging("user-token")) {
			t.Errorf("log output missing user hash: %s", out)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		auditor, buf := newBufferedAuditor(false)
		auditor.LogEvent(Event{Type: EventTokenIssued})
		if buf.Len() != 0 {
			t.Errorf("disabled auditor wrote %q", buf.String())
		}
	})

	t.Run("nil auditor", func(t *testing.T) {
		var auditor *Auditor
		auditor.LogEvent(Event{Type: EventTokenIssued})
		auditor.LogRateLimitExceeded("10.0.0.1", "/oauth/token")
	})
}

func TestAuditor_Helpers(t *testing.T) {
	tests := []struct {
		name      string
		log       func(a *Auditor)
		wantEvent string
		wantText  []string
	}{
		{
			name:      "code issued",
			log:       func(a *Auditor) { a.LogCodeIssued("u", "client_1", "10.0.0.1", "projects:read", "header") },
			wantEvent: EventAuthorizationCodeIssued,
			wantText:  []string{"client_id=client_1", "auth_mode:header", "ip_address=10.0.0.1"},
		},
		{
			name:      "token issued",
			log:       func(a *Auditor) { a.LogTokenIssued("u", "client_1", "10.0.0.1", "projects:read") },
			wantEvent: EventTokenIssued,
			wantText:  []string{"scope:projects:read"},
		},
		{
			name:      "token refreshed",
			log:       func(a *Auditor) { a.LogTokenRefreshed("u", "client_1", "10.0.0.1") },
			wantEvent: EventTokenRefreshed,
			wantText:  []string{"rotated:true"},
		},
		{
			name: "auth failure",
			log: func(a *Auditor) {
				a.LogAuthFailure(EventPKCEValidationFailed, "client_1", "10.0.0.1", "verifier mismatch")
			},
			wantEvent: EventPKCEValidationFailed,
			wantText:  []string{"verifier mismatch"},
		},
		{
			name:      "client registered",
			log:       func(a *Auditor) { a.LogClientRegistered("client_1", "Claude", "10.0.0.1", 2) },
			wantEvent: EventClientRegistered,
			wantText:  []string{"client_name:Claude", "redirect_uri_count:2"},
		},
		{
			name:      "rate limit exceeded",
			log:       func(a *Auditor) { a.LogRateLimitExceeded("10.0.0.1", "/oauth/token") },
			wantEvent: EventRateLimitExceeded,
			wantText:  []string{"endpoint:/oauth/token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, buf := newBufferedAuditor(true)
			tt.log(auditor)

			out := buf.String()
			if !strings.Contains(out, "event_type="+tt.wantEvent) {
				t.Errorf("log output missing event type %q: %s", tt.wantEvent, out)
			}
			for _, want := range tt.wantText {
				if !strings.Contains(out, want) {
					t.Errorf("log output missing %q: %s", want, out)
				}
			}
		})
	}
}

func Test_hashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}

	h := hashForLogging("llmr_secret")
	if len(h) != 16 {
		t.Errorf("hash length = %d, want 16", len(h))
	}
	if h != hashForLogging("llmr_secret") {
		t.Error("hashForLogging() is not deterministic")
	}
	if h == hashForLogging("llmr_other") {
		t.Error("different inputs produced the same hash")
	}
}
