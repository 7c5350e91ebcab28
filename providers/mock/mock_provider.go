// Package mock provides a mock implementation of providers.IdentityProvider for testing.
package mock

import (
	"context"
	"net/http"
	"sync"

	"github.com/lsendel/llmrank-mcp-gateway/providers"
)

// Default credentials accepted by a new MockProvider.
const (
	DefaultEmail    = "user@example.com"
	DefaultPassword = "correct-horse"
	DefaultAPIToken = "llmr_mockapitoken"
)

// MockProvider is a mock implementation of providers.IdentityProvider.
type MockProvider struct {
	// SignInFunc is called when SignIn() is invoked
	SignInFunc func(ctx context.Context, email, password string) (*providers.Session, error)

	// MintAPITokenFunc is called when MintAPIToken() is invoked
	MintAPITokenFunc func(ctx context.Context, session *providers.Session, name string) (string, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// TokenNames records the names passed to MintAPIToken
	TokenNames []string

	mu sync.RWMutex
}

var _ providers.IdentityProvider = (*MockProvider)(nil)

// NewMockProvider creates a mock that accepts DefaultEmail/DefaultPassword and
// mints DefaultAPIToken.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		SignInFunc: func(_ context.Context, email, password string) (*providers.Session, error) {
			if email != DefaultEmail || password != DefaultPassword {
				return nil, providers.ErrInvalidCredentials
			}
			return &providers.Session{
				Cookies: []*http.Cookie{{Name: "session", Value: "mock-session"}},
			}, nil
		},
		MintAPITokenFunc: func(_ context.Context, session *providers.Session, _ string) (string, error) {
			if session.Empty() {
				return "", providers.ErrTokenIssuance
			}
			return DefaultAPIToken, nil
		},
	}
}

// SignIn implements providers.IdentityProvider
func (m *MockProvider) SignIn(ctx context.Context, email, password string) (*providers.Session, error) {
	m.incrementCallCount("SignIn")
	return m.SignInFunc(ctx, email, password)
}

// MintAPIToken implements providers.IdentityProvider
func (m *MockProvider) MintAPIToken(ctx context.Context, session *providers.Session, name string) (string, error) {
	m.incrementCallCount("MintAPIToken")
	m.mu.Lock()
	m.TokenNames = append(m.TokenNames, name)
	m.mu.Unlock()
	return m.MintAPITokenFunc(ctx, session, name)
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

// ResetCallCounts resets all call counts to zero
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts = make(map[string]int)
	m.TokenNames = nil
}

func (m *MockProvider) incrementCallCount(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}
