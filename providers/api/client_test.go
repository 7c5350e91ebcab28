package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/providers"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.example.com/"})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", c.baseURL)
	assert.Equal(t, DefaultSignInPath, c.signInPath)
	assert.Equal(t, DefaultTokenPath, c.tokenPath)
	assert.Equal(t, DefaultTokenType, c.tokenType)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestSignIn_CookieSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultSignInPath, r.URL.Path)

		var body signInRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body.Email)
		assert.Equal(t, "secret", body.Password)

		http.SetCookie(w, &http.Cookie{Name: "session_token", Value: "abc"})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"user":{"id":"u1"}}`))
	}))

	session, err := c.SignIn(context.Background(), "user@example.com", "secret")
	require.NoError(t, err)
	require.Len(t, session.Cookies, 1)
	assert.Equal(t, "session_token", session.Cookies[0].Name)
	assert.Empty(t, session.BearerToken)
}

func TestSignIn_BearerSession(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "header",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Set-Auth-Token", "bearer-1")
				w.WriteHeader(http.StatusOK)
			},
		},
		{
			name: "body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"token":"bearer-1"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			session, err := c.SignIn(context.Background(), "a@b.c", "pw")
			require.NoError(t, err)
			assert.Equal(t, "bearer-1", session.BearerToken)
		})
	}
}

func TestSignIn_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: providers.ErrInvalidCredentials},
		{name: "bad request", status: http.StatusBadRequest, wantErr: providers.ErrInvalidCredentials},
		{name: "server error", status: http.StatusBadGateway, wantErr: providers.ErrUpstream},
		{name: "no session", status: http.StatusOK, body: `{}`, wantErr: providers.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := c.SignIn(context.Background(), "a@b.c", "pw")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestSignIn_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	require.NoError(t, err)

	_, err = c.SignIn(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, providers.ErrUpstream)
}

func TestMintAPIToken(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "data plaintext", body: `{"data":{"plaintext":"llmr_abc"}}`, want: "llmr_abc"},
		{name: "top-level token", body: `{"token":"llmr_def"}`, want: "llmr_def"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, DefaultTokenPath, r.URL.Path)

				cookie, err := r.Cookie("session_token")
				require.NoError(t, err)
				assert.Equal(t, "abc", cookie.Value)

				var body mintRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "MCP token", body.Name)
				assert.Equal(t, DefaultTokenType, body.Type)

				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(tt.body))
			}))

			session := &providers.Session{Cookies: []*http.Cookie{{Name: "session_token", Value: "abc"}}}
			token, err := c.MintAPIToken(context.Background(), session, "MCP token")
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestMintAPIToken_BearerSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sess", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"plaintext":"llmr_x"}}`))
	}))

	token, err := c.MintAPIToken(context.Background(), &providers.Session{BearerToken: "sess"}, "n")
	require.NoError(t, err)
	assert.Equal(t, "llmr_x", token)
}

func TestMintAPIToken_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":"plan limit"}`},
		{name: "invalid json", status: http.StatusOK, body: `not json`},
		{name: "empty token", status: http.StatusOK, body: `{"data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := c.MintAPIToken(context.Background(), &providers.Session{BearerToken: "s"}, "n")
			assert.ErrorIs(t, err, providers.ErrTokenIssuance)
		})
	}
}

func TestMintAPIToken_NoSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("token endpoint must not be called without a session")
	}))

	_, err := c.MintAPIToken(context.Background(), nil, "n")
	assert.ErrorIs(t, err, providers.ErrTokenIssuance)
}

func TestClient_WithInstrumentation(t *testing.T) {
	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracesExporter:  instrumentation.ExporterNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Instrumentation: inst})
	require.NoError(t, err)

	_, err = c.SignIn(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, providers.ErrInvalidCredentials)

	rec := httptest.NewRecorder()
	inst.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "provider")
}
