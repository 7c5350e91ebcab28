package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/lsendel/llmrank-mcp-gateway"
)

var testScopes = []string{"projects:read", "projects:write", "crawls:read"}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func withPrincipal(p *oauth.Principal) context.Context {
	return oauth.ContextWithPrincipal(context.Background(), p)
}

func TestWhoAmI(t *testing.T) {
	s := New("test", testScopes, nil)

	ctx := withPrincipal(&oauth.Principal{
		Token:    "0123456789abcdef",
		UserID:   "llmr_abcdef123456",
		ClientID: "client_1",
		Scopes:   []string{"projects:read"},
	})
	res, err := s.handleWhoAmI(ctx, callRequest("whoami", nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var got whoAmIResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "llmr_abc", got.UserID, "user id is truncated")
	assert.Equal(t, "01234567", got.TokenPrefix)
	assert.Equal(t, "client_1", got.ClientID)
	assert.False(t, got.Direct)
	assert.Equal(t, []string{"projects:read"}, got.Scopes)
}

func TestWhoAmI_NoPrincipal(t *testing.T) {
	s := New("test", testScopes, nil)

	res, err := s.handleWhoAmI(context.Background(), callRequest("whoami", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListScopes(t *testing.T) {
	s := New("test", testScopes, nil)

	tests := []struct {
		name        string
		scopes      []string
		wantGranted []string
	}{
		{name: "oauth token", scopes: []string{"crawls:read"}, wantGranted: []string{"crawls:read"}},
		{name: "direct token", scopes: []string{oauth.WildcardScope}, wantGranted: testScopes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleListScopes(withPrincipal(&oauth.Principal{Scopes: tt.scopes}), callRequest("list_scopes", nil))
			require.NoError(t, err)

			var got listScopesResult
			require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
			assert.Equal(t, tt.wantGranted, got.Granted)
			assert.Equal(t, testScopes, got.Supported)
		})
	}
}

func TestCheckScope(t *testing.T) {
	s := New("test", testScopes, nil)
	ctx := withPrincipal(&oauth.Principal{Scopes: []string{"projects:read"}})

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		wantText  string
	}{
		{name: "granted", args: map[string]any{"scope": "projects:read"}, wantText: "granted: projects:read"},
		{name: "denied", args: map[string]any{"scope": "crawls:read"}, wantText: "denied: crawls:read"},
		{name: "unknown scope", args: map[string]any{"scope": "admin"}, wantError: true},
		{name: "missing argument", args: map[string]any{}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleCheckScope(ctx, callRequest("check_scope", tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.wantError, res.IsError)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, resultText(t, res))
			}
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	p := &oauth.Principal{UserID: "u"}
	r := httptest.NewRequest(http.MethodPost, "/v1/mcp", nil)
	r = r.WithContext(oauth.ContextWithPrincipal(r.Context(), p))

	got, ok := oauth.PrincipalFromContext(principalContext(context.Background(), r))
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = oauth.PrincipalFromContext(principalContext(context.Background(), httptest.NewRequest(http.MethodPost, "/", nil)))
	assert.False(t, ok)
}

func TestServeHTTP_Initialize(t *testing.T) {
	s := New("1.2.3", testScopes, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`
	r := httptest.NewRequest(http.MethodPost, "/v1/mcp", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "llmrank-mcp-gateway")
	assert.Contains(t, rec.Body.String(), "1.2.3")
}
