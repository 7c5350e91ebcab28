package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateRandomString returns a hex string of length characters.
func GenerateRandomString(length int) string {
	b := make([]byte, (length+1)/2)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)[:length]
}

// GeneratePKCEPair returns an S256 challenge and its verifier.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = oauth2.GenerateVerifier()
	return oauth2.S256ChallengeFromVerifier(verifier), verifier
}

// GenerateTestClient creates a registered public client fixture.
func GenerateTestClient() *storage.Client {
	return &storage.Client{
		ClientID:                "client_" + GenerateRandomString(32),
		ClientName:              "Test Client",
		RedirectURIs:            []string{"http://localhost:3000/callback"},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		ClientIDIssuedAt:        time.Now().Unix(),
	}
}

// GenerateTestAuthorizationCode creates an authorization code fixture valid for ten minutes.
func GenerateTestAuthorizationCode() *storage.AuthorizationCode {
	challenge, _ := GeneratePKCEPair()
	return &storage.AuthorizationCode{
		Code:                GenerateRandomString(64),
		ClientID:            "client_test",
		UserID:              "llmr_test_user_token",
		Scopes:              []string{"projects:read"},
		RedirectURI:         "http://localhost:3000/callback",
		CodeChallenge:       challenge,
		CodeChallengeMethod: storage.PKCEMethodS256,
		ExpiresAt:           time.Now().Add(10 * time.Minute).Unix(),
	}
}

// GenerateTestToken creates a token record fixture expiring after ttl.
func GenerateTestToken(ttl time.Duration) *storage.Token {
	return &storage.Token{
		Token:     GenerateRandomString(64),
		UserID:    "llmr_test_user_token",
		ClientID:  "client_test",
		Scopes:    []string{"projects:read", "crawls:read"},
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
}

// HTTPRequest is a small builder for handler tests.
type HTTPRequest struct {
	method  string
	url     string
	headers map[string]string
	body    string
}

// NewHTTPRequest starts building a request.
func NewHTTPRequest(method, url string) *HTTPRequest {
	return &HTTPRequest{method: method, url: url, headers: make(map[string]string)}
}

// WithHeader sets a request header.
func (r *HTTPRequest) WithHeader(key, value string) *HTTPRequest {
	r.headers[key] = value
	return r
}

// WithForm sets an urlencoded body.
func (r *HTTPRequest) WithForm(body string) *HTTPRequest {
	r.body = body
	r.headers["Content-Type"] = "application/x-www-form-urlencoded"
	return r
}

// WithJSON sets a JSON body.
func (r *HTTPRequest) WithJSON(body string) *HTTPRequest {
	r.body = body
	r.headers["Content-Type"] = "application/json"
	return r
}

// Do sends the request to handler and returns the recorded response.
func (r *HTTPRequest) Do(handler http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(r.method, r.url, strings.NewReader(r.body))
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// AssertStatus fails the test when the recorded status differs from want.
func AssertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}
