package oauth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// TestEndToEnd drives registration, authorization, exchange, refresh and a
// protected call with a stock OAuth 2 client library.
func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	ts := httptest.NewServer(env.mux)
	t.Cleanup(ts.Close)

	regBody, _ := json.Marshal(map[string]any{
		"client_name":   "e2e",
		"redirect_uris": []string{"http://localhost:8765/callback"},
	})
	resp, err := http.Post(ts.URL+PathRegister, "application/json", bytes.NewReader(regBody))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	var client storage.Client
	if err := json.NewDecoder(resp.Body).Decode(&client); err != nil {
		t.Fatalf("decode client: %v", err)
	}

	cfg := &oauth2.Config{
		ClientID:    client.ClientID,
		RedirectURL: client.RedirectURIs[0],
		Scopes:      []string{"projects:read", "crawls:read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + PathAuthorize,
			TokenURL:  ts.URL + PathToken,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	verifier := oauth2.GenerateVerifier()
	authReq, err := http.NewRequest(http.MethodGet, cfg.AuthCodeURL("xyz", oauth2.S256ChallengeOption(verifier)), nil)
	if err != nil {
		t.Fatalf("build authorize request: %v", err)
	}
	authReq.Header.Set(DefaultIdentityHeader, "llmr_e2e_user")

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	authResp, err := noRedirect.Do(authReq)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	authResp.Body.Close()
	if authResp.StatusCode != http.StatusFound {
		t.Fatalf("authorize status = %d", authResp.StatusCode)
	}
	loc, err := url.Parse(authResp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if loc.Query().Get("state") != "xyz" {
		t.Fatalf("state = %q, want xyz", loc.Query().Get("state"))
	}

	ctx := t.Context()
	tok, err := cfg.Exchange(ctx, loc.Query().Get("code"), oauth2.VerifierOption(verifier))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" || tok.TokenType != "Bearer" {
		t.Fatalf("token = %+v", tok)
	}
	if scope, _ := tok.Extra("scope").(string); scope != "projects:read crawls:read" {
		t.Errorf("scope = %q", scope)
	}

	// Replaying the code fails.
	if _, err := cfg.Exchange(ctx, loc.Query().Get("code"), oauth2.VerifierOption(verifier)); err == nil {
		t.Error("second Exchange() should fail")
	}

	// An empty access token forces the token source to refresh.
	refreshed, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == tok.AccessToken || refreshed.RefreshToken == tok.RefreshToken {
		t.Error("refresh must rotate both tokens")
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(refreshed))
	mcpResp, err := httpClient.Post(ts.URL+"/v1/mcp", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("protected call: %v", err)
	}
	defer mcpResp.Body.Close()
	if mcpResp.StatusCode != http.StatusOK {
		t.Fatalf("protected call status = %d", mcpResp.StatusCode)
	}
	var p Principal
	if err := json.NewDecoder(mcpResp.Body).Decode(&p); err != nil {
		t.Fatalf("decode principal: %v", err)
	}
	if p.ClientID != client.ClientID || p.UserID != "llmr_e2e_user" {
		t.Errorf("principal = %+v", p)
	}
}
