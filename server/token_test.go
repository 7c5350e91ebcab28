package server

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/lsendel/llmrank-mcp-gateway/storage"
	"github.com/lsendel/llmrank-mcp-gateway/storage/memory"
)

func TestServer_ValidateAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, verifier := issueCode(t, env, "projects:read")
	pair, err := env.srv.ExchangeAuthorizationCode(ctx, code, verifier, "https://app.test/cb", "", "")
	if err != nil {
		t.Fatalf("ExchangeAuthorizationCode() error = %v", err)
	}

	p, err := env.srv.ValidateAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	want := &Principal{
		Token:    pair.AccessToken,
		UserID:   "llmr_user",
		ClientID: "client_abc",
		Scopes:   []string{"projects:read"},
	}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("principal = %+v, want %+v", p, want)
	}
}

func TestServer_ValidateAccessToken_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		token    string
		wantDesc string
	}{
		{name: "missing", token: "", wantDesc: "Missing access token"},
		{name: "unknown", token: "deadbeef", wantDesc: "Invalid access token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.srv.ValidateAccessToken(ctx, tt.token)
			var oauthErr *OAuthError
			if !errors.As(err, &oauthErr) {
				t.Fatalf("error = %v, want *OAuthError", err)
			}
			if oauthErr.Code != ErrorCodeInvalidToken || oauthErr.Status != 401 {
				t.Errorf("error = %+v, want invalid_token/401", oauthErr)
			}
			if oauthErr.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", oauthErr.Description, tt.wantDesc)
			}
		})
	}
}

func TestServer_ValidateAccessToken_ExpiredBeforeEviction(t *testing.T) {
	// The backend runs on the wall clock and never evicts during the test;
	// the server clock moves past the token's expiry.
	kv := memory.New()
	t.Cleanup(kv.Stop)
	store := storage.NewCredentialStore(kv)

	srv, err := New(store, store, store, &Config{Issuer: testIssuer}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	pair, err := srv.issueTokenPair(ctx, "u", "c", []string{"pages:read"})
	if err != nil {
		t.Fatalf("issueTokenPair() error = %v", err)
	}

	srv.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })

	_, err = srv.ValidateAccessToken(ctx, pair.AccessToken)
	var oauthErr *OAuthError
	if !errors.As(err, &oauthErr) {
		t.Fatalf("error = %v, want *OAuthError", err)
	}
	if oauthErr.Description != "Access token expired" {
		t.Errorf("Description = %q, want %q", oauthErr.Description, "Access token expired")
	}
}

func TestServer_ValidateAccessToken_DirectToken(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.srv.ValidateAccessToken(context.Background(), "llmr_live_abc123")
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if !p.Direct || p.UserID != "llmr_live_abc123" || p.Token != "llmr_live_abc123" {
		t.Errorf("principal = %+v", p)
	}
	if !reflect.DeepEqual(p.Scopes, []string{"*"}) {
		t.Errorf("Scopes = %v, want [*]", p.Scopes)
	}
	if !p.HasScope("reports:write") {
		t.Error("wildcard principal should hold every scope")
	}
}

func TestServer_ValidateAccessToken_DirectTokenDisabled(t *testing.T) {
	store := storage.NewCredentialStore(memory.New())
	srv, err := New(store, store, store, &Config{Issuer: testIssuer, DisableDirectTokens: true}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = srv.ValidateAccessToken(context.Background(), "llmr_live_abc123")
	if err == nil {
		t.Fatal("direct token accepted while disabled")
	}
}

func TestPrincipal_HasScope(t *testing.T) {
	p := &Principal{Scopes: []string{"projects:read", "pages:read"}}

	if !p.HasScope("pages:read") {
		t.Error("HasScope(pages:read) = false")
	}
	if p.HasScope("projects:write") {
		t.Error("HasScope(projects:write) = true")
	}

	var nilPrincipal *Principal
	if nilPrincipal.HasScope("pages:read") {
		t.Error("nil principal should hold no scope")
	}
}
