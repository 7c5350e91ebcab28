package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/internal/util"
	"github.com/lsendel/llmrank-mcp-gateway/security"
)

const (
	// MinCodeTTL is the smallest TTL handed to the backend for an authorization code.
	// The embedded ExpiresAt stays authoritative; the floor keeps a zero or negative
	// TTL from racing the backend's own eviction.
	MinCodeTTL = 60 * time.Second

	// tokenIDLogLength is the number of characters of a credential included in logs
	tokenIDLogLength = 8
)

// CredentialStore implements TokenStore, ClientStore and FlowStore on top of a KV backend.
// Values are stored as JSON, optionally encrypted with AES-256-GCM.
type CredentialStore struct {
	kv        KV
	encryptor *security.Encryptor
	now       func() time.Time
	logger    *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

var (
	_ TokenStore  = (*CredentialStore)(nil)
	_ ClientStore = (*CredentialStore)(nil)
	_ FlowStore   = (*CredentialStore)(nil)
)

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithEncryptor enables encryption of stored values at rest.
func WithEncryptor(enc *security.Encryptor) Option {
	return func(s *CredentialStore) { s.encryptor = enc }
}

// WithClock replaces the wall clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *CredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInstrumentation enables storage spans and metrics.
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(s *CredentialStore) {
		s.instrumentation = inst
		if inst != nil {
			s.tracer = inst.Tracer("storage")
		}
	}
}

// NewCredentialStore wraps kv with the typed credential operations.
func NewCredentialStore(kv KV, opts ...Option) *CredentialStore {
	s := &CredentialStore{
		kv:     kv,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.encryptor != nil && s.encryptor.IsEnabled() {
		s.logger.Info("Credential encryption at rest enabled")
	}
	return s
}

// ============================================================
// FlowStore Implementation
// ============================================================

// SaveAuthorizationCode persists code with a TTL of max(remaining lifetime, MinCodeTTL).
func (s *CredentialStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	ttl := max(time.Unix(code.ExpiresAt, 0).Sub(s.now()), MinCodeTTL)
	if err := s.put(ctx, "save_authorization_code", CodeKey(code.Code), code, ttl); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID,
		"ttl", ttl)
	return nil
}

// GetAuthorizationCode returns the code if it is present and its ExpiresAt has not passed.
func (s *CredentialStore) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	authCode, err := load[AuthorizationCode](ctx, s, "get_authorization_code", CodeKey(code), s.kv.Get)
	if err != nil {
		return nil, notFoundAs(err, ErrAuthorizationCodeNotFound)
	}

	// The backend TTL is advisory; the embedded expiry decides.
	if authCode.Expired(s.now()) {
		return nil, fmt.Errorf("%w: expired", ErrAuthorizationCodeNotFound)
	}
	return authCode, nil
}

// TakeAuthorizationCode atomically removes and returns the code.
// The code is gone from the backend even when it turns out to be expired.
func (s *CredentialStore) TakeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	authCode, err := load[AuthorizationCode](ctx, s, "take_authorization_code", CodeKey(code), s.kv.Take)
	if err != nil {
		return nil, notFoundAs(err, ErrAuthorizationCodeNotFound)
	}

	if authCode.Expired(s.now()) {
		return nil, fmt.Errorf("%w: expired", ErrAuthorizationCodeNotFound)
	}

	s.logger.Debug("Redeemed authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
	return authCode, nil
}

// DeleteAuthorizationCode removes a code.
func (s *CredentialStore) DeleteAuthorizationCode(ctx context.Context, code string) error {
	return s.delete(ctx, "delete_authorization_code", CodeKey(code))
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken persists an access token until its expiry.
func (s *CredentialStore) SaveAccessToken(ctx context.Context, token *Token) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}
	if err := s.put(ctx, "save_access_token", AccessTokenKey(token.Token), token, s.ttlUntil(token.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// GetAccessToken returns the stored access token record.
func (s *CredentialStore) GetAccessToken(ctx context.Context, token string) (*Token, error) {
	t, err := load[Token](ctx, s, "get_access_token", AccessTokenKey(token), s.kv.Get)
	if err != nil {
		return nil, notFoundAs(err, ErrTokenNotFound)
	}
	return t, nil
}

// DeleteAccessToken removes an access token.
func (s *CredentialStore) DeleteAccessToken(ctx context.Context, token string) error {
	return s.delete(ctx, "delete_access_token", AccessTokenKey(token))
}

// SaveRefreshToken persists a refresh token until its expiry.
func (s *CredentialStore) SaveRefreshToken(ctx context.Context, token *Token) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}
	if err := s.put(ctx, "save_refresh_token", RefreshTokenKey(token.Token), token, s.ttlUntil(token.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns an unexpired refresh token without consuming it.
func (s *CredentialStore) GetRefreshToken(ctx context.Context, token string) (*Token, error) {
	t, err := load[Token](ctx, s, "get_refresh_token", RefreshTokenKey(token), s.kv.Get)
	if err != nil {
		return nil, notFoundAs(err, ErrTokenNotFound)
	}
	if t.Expired(s.now()) {
		return nil, fmt.Errorf("%w: expired", ErrTokenNotFound)
	}
	return t, nil
}

// TakeRefreshToken atomically removes and returns an unexpired refresh token.
func (s *CredentialStore) TakeRefreshToken(ctx context.Context, token string) (*Token, error) {
	t, err := load[Token](ctx, s, "take_refresh_token", RefreshTokenKey(token), s.kv.Take)
	if err != nil {
		return nil, notFoundAs(err, ErrTokenNotFound)
	}
	if t.Expired(s.now()) {
		return nil, fmt.Errorf("%w: expired", ErrTokenNotFound)
	}

	s.logger.Debug("Rotated refresh token",
		"token_prefix", util.SafeTruncate(token, tokenIDLogLength))
	return t, nil
}

// DeleteRefreshToken removes a refresh token.
func (s *CredentialStore) DeleteRefreshToken(ctx context.Context, token string) error {
	return s.delete(ctx, "delete_refresh_token", RefreshTokenKey(token))
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient persists a client without expiry.
func (s *CredentialStore) SaveClient(ctx context.Context, client *Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}
	if err := s.put(ctx, "save_client", ClientKey(client.ClientID), client, 0); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient returns a registered client.
func (s *CredentialStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	c, err := load[Client](ctx, s, "get_client", ClientKey(clientID), s.kv.Get)
	if err != nil {
		return nil, notFoundAs(err, ErrClientNotFound)
	}
	return c, nil
}

// ============================================================
// Helpers
// ============================================================

func (s *CredentialStore) ttlUntil(expiresAt int64) time.Duration {
	return max(time.Unix(expiresAt, 0).Sub(s.now()), MinCodeTTL)
}

func (s *CredentialStore) put(ctx context.Context, operation, key string, v any, ttl time.Duration) (err error) {
	ctx, span := s.startStorageSpan(ctx, operation)
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, operation, err, startTime)
	}()

	data, err := s.encode(v)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, key, data, ttl)
}

func (s *CredentialStore) delete(ctx context.Context, operation, key string) (err error) {
	ctx, span := s.startStorageSpan(ctx, operation)
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, operation, err, startTime)
	}()

	return s.kv.Delete(ctx, key)
}

// load reads key through read (Get or Take) and decodes it into a T.
func load[T any](ctx context.Context, s *CredentialStore, operation, key string, read func(context.Context, string) ([]byte, error)) (result *T, err error) {
	ctx, span := s.startStorageSpan(ctx, operation)
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, operation, err, startTime)
	}()

	data, err := read(ctx, key)
	if err != nil {
		return nil, err
	}

	var v T
	if err := s.decode(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *CredentialStore) encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	if s.encryptor == nil || !s.encryptor.IsEnabled() {
		return data, nil
	}
	sealed, err := s.encryptor.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt value: %w", err)
	}
	return sealed, nil
}

func (s *CredentialStore) decode(data []byte, v any) error {
	if s.encryptor != nil && s.encryptor.IsEnabled() {
		plaintext, err := s.encryptor.Open(data)
		if err != nil {
			return fmt.Errorf("failed to decrypt value: %w", err)
		}
		data = plaintext
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

// notFoundAs maps the backend's ErrNotFound to the entity-specific sentinel.
func notFoundAs(err, sentinel error) error {
	if errors.Is(err, ErrNotFound) {
		return sentinel
	}
	return err
}

// startStorageSpan starts a span for a storage operation
func (s *CredentialStore) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(attribute.String(instrumentation.AttrStorageOperation, operation)))
}

// recordStorageOperation records metrics for a storage operation and sets span status.
// A miss is not an error.
func (s *CredentialStore) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	result := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
		instrumentation.SetSpanSuccess(span)
	case err != nil:
		result = "error"
		instrumentation.RecordError(span, err)
	default:
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
