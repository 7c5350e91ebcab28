package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lsendel/llmrank-mcp-gateway/internal/testutil"
	"github.com/lsendel/llmrank-mcp-gateway/server"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

func decodePrincipal(t *testing.T, body []byte) Principal {
	t.Helper()
	var p Principal
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("principal is not JSON: %v (%s)", err, body)
	}
	return p
}

func assertChallenge(t *testing.T, header, description string) {
	t.Helper()
	if !strings.HasPrefix(header, "Bearer ") {
		t.Errorf("WWW-Authenticate = %q, want Bearer challenge", header)
	}
	want := `resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`
	if !strings.Contains(header, want) {
		t.Errorf("WWW-Authenticate = %q, want %s", header, want)
	}
	if !strings.Contains(header, `error="invalid_token"`) {
		t.Errorf("WWW-Authenticate = %q, want error=\"invalid_token\"", header)
	}
	if description != "" && !strings.Contains(header, description) {
		t.Errorf("WWW-Authenticate = %q, want description %q", header, description)
	}
}

func TestValidateToken_Valid(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	code, verifier := env.obtainCode(t, "projects:read")
	tokens := env.exchange(t, code, verifier)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		rec := testutil.NewHTTPRequest(method, "/v1/mcp").
			WithHeader("Authorization", "Bearer "+tokens.AccessToken).
			Do(env.mux)
		testutil.AssertStatus(t, rec, http.StatusOK)

		p := decodePrincipal(t, rec.Body.Bytes())
		if p.Token != tokens.AccessToken || p.UserID != "llmr_user_token" || p.ClientID != "client_abc" || p.Direct {
			t.Errorf("%s principal = %+v", method, p)
		}
		if len(p.Scopes) != 1 || p.Scopes[0] != "projects:read" {
			t.Errorf("%s scopes = %v", method, p.Scopes)
		}
	}
}

func TestValidateToken_Rejections(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})

	tests := []struct {
		name   string
		header string
		desc   string
	}{
		{name: "no header", header: "", desc: "Missing or invalid Authorization header"},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", desc: "Missing or invalid Authorization header"},
		{name: "lowercase bearer", header: "bearer abc", desc: "Missing or invalid Authorization header"},
		{name: "unknown token", header: "Bearer deadbeef", desc: "Invalid access token"},
		{name: "empty token", header: "Bearer ", desc: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewHTTPRequest(http.MethodPost, "/v1/mcp")
			if tt.header != "" {
				req = req.WithHeader("Authorization", tt.header)
			}
			rec := req.Do(env.mux)

			body := assertErrorResponse(t, rec, http.StatusUnauthorized, ErrorCodeInvalidToken)
			if tt.desc != "" && body.ErrorDescription != tt.desc {
				t.Errorf("error_description = %q, want %q", body.ErrorDescription, tt.desc)
			}
			assertChallenge(t, rec.Header().Get("WWW-Authenticate"), tt.desc)
		})
	}
}

func TestValidateToken_Expired(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	now := env.clock.Now()

	// Stored with a long TTL, but the embedded expiry has passed.
	err := env.store.SaveAccessToken(t.Context(), &storage.Token{
		Token:     "stale",
		UserID:    "u",
		ClientID:  "c",
		Scopes:    []string{"projects:read"},
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}
	env.server.SetClock(func() time.Time { return now.Add(2 * time.Hour) })

	rec := testutil.NewHTTPRequest(http.MethodGet, "/v1/mcp").
		WithHeader("Authorization", "Bearer stale").
		Do(env.mux)

	body := assertErrorResponse(t, rec, http.StatusUnauthorized, ErrorCodeInvalidToken)
	if body.ErrorDescription != "Access token expired" {
		t.Errorf("error_description = %q", body.ErrorDescription)
	}
	assertChallenge(t, rec.Header().Get("WWW-Authenticate"), "Access token expired")
}

func TestValidateToken_DirectToken(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})

	rec := testutil.NewHTTPRequest(http.MethodPost, "/v1/mcp").
		WithHeader("Authorization", "Bearer llmr_direct_key").
		Do(env.mux)
	testutil.AssertStatus(t, rec, http.StatusOK)

	p := decodePrincipal(t, rec.Body.Bytes())
	if !p.Direct || p.UserID != "llmr_direct_key" || p.ClientID != "" {
		t.Errorf("principal = %+v", p)
	}
	if len(p.Scopes) != 1 || p.Scopes[0] != server.WildcardScope {
		t.Errorf("scopes = %v, want [*]", p.Scopes)
	}
}

func TestValidateToken_DirectTokensDisabled(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	env.server.Config.DisableDirectTokens = true

	rec := testutil.NewHTTPRequest(http.MethodPost, "/v1/mcp").
		WithHeader("Authorization", "Bearer llmr_direct_key").
		Do(env.mux)
	assertErrorResponse(t, rec, http.StatusUnauthorized, ErrorCodeInvalidToken)
}

func TestPrincipalFromContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Error("empty context should have no principal")
	}

	want := &Principal{Token: "t", UserID: "u", Scopes: []string{"*"}, Direct: true}
	got, ok := PrincipalFromContext(ContextWithPrincipal(context.Background(), want))
	if !ok || got != want {
		t.Errorf("PrincipalFromContext() = %v, %v", got, ok)
	}

	if _, ok := PrincipalFromContext(ContextWithPrincipal(context.Background(), nil)); ok {
		t.Error("nil principal should not be reported")
	}
}
