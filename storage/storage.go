package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by backends and the CredentialStore.
var (
	// ErrNotFound is returned by KV backends when a key is absent or has expired.
	ErrNotFound = errors.New("key not found")

	// ErrAuthorizationCodeNotFound covers codes that are absent, already redeemed or expired.
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrTokenNotFound covers access and refresh tokens that are absent or already rotated.
	ErrTokenNotFound = errors.New("token not found")

	// ErrClientNotFound is returned when no client is registered under the given ID.
	ErrClientNotFound = errors.New("client not found")
)

// KV is the contract every storage backend implements.
// Keys are already namespaced by the caller; backends may add their own
// deployment prefix but must not interpret the key otherwise.
type KV interface {
	// Put stores value under key. A ttl <= 0 stores the value without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Take atomically returns and removes the value stored under key.
	// When several callers race on the same key exactly one receives the value,
	// the others receive ErrNotFound.
	Take(ctx context.Context, key string) ([]byte, error)
}

// FlowStore persists authorization codes.
type FlowStore interface {
	// SaveAuthorizationCode persists an issued code until its expiry.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode returns a code without consuming it.
	// Codes whose ExpiresAt has passed are reported as not found.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// TakeAuthorizationCode consumes a code. Only one caller can ever succeed.
	TakeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code.
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore persists access and refresh tokens.
type TokenStore interface {
	SaveAccessToken(ctx context.Context, token *Token) error

	// GetAccessToken returns the stored record even when ExpiresAt has passed
	// but the backend has not evicted it yet; callers decide how to report it.
	GetAccessToken(ctx context.Context, token string) (*Token, error)

	DeleteAccessToken(ctx context.Context, token string) error

	SaveRefreshToken(ctx context.Context, token *Token) error

	// GetRefreshToken returns a refresh token without consuming it.
	// Expired tokens are reported as not found.
	GetRefreshToken(ctx context.Context, token string) (*Token, error)

	// TakeRefreshToken consumes a refresh token for rotation.
	// Expired tokens are reported as not found.
	TakeRefreshToken(ctx context.Context, token string) (*Token, error)

	DeleteRefreshToken(ctx context.Context, token string) error
}

// ClientStore persists dynamically registered clients.
type ClientStore interface {
	// SaveClient persists a client without expiry.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient returns the client or ErrClientNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}
