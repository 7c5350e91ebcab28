package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// Bearer validation outcomes recorded in metrics.
const (
	BearerResultValid   = "valid"
	BearerResultDirect  = "direct"
	BearerResultMissing = "missing"
	BearerResultUnknown = "unknown"
	BearerResultExpired = "expired"
	BearerResultError   = "error"
)

// Principal is the caller resolved from a bearer token.
type Principal struct {
	Token    string
	UserID   string
	ClientID string
	Scopes   []string

	// Direct is set for dashboard API tokens presented without an OAuth exchange.
	Direct bool
}

// HasScope reports whether the principal was granted scope. The wildcard
// scope grants everything.
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope || s == WildcardScope {
			return true
		}
	}
	return false
}

// IsDirectToken reports whether token carries the configured direct API token prefix.
func (s *Server) IsDirectToken(token string) bool {
	return !s.Config.DisableDirectTokens && strings.HasPrefix(token, s.Config.DirectTokenPrefix)
}

// ValidateAccessToken resolves a bearer token. Direct API tokens skip the store
// and receive the wildcard scope. Stored tokens must be present and unexpired.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (principal *Principal, err error) {
	ctx, span := s.startSpan(ctx, "server.validate_access_token")
	defer span.End()

	result := BearerResultValid
	defer func() {
		s.withMetrics(func(m *instrumentation.Metrics) { m.RecordBearerValidation(ctx, result) })
		finishSpan(span, err)
	}()

	if token == "" {
		result = BearerResultMissing
		return nil, ErrInvalidToken("Missing access token")
	}

	if s.IsDirectToken(token) {
		result = BearerResultDirect
		span.SetAttributes(attribute.Bool(instrumentation.AttrTokenDirect, true))
		return &Principal{
			Token:  token,
			UserID: token,
			Scopes: []string{WildcardScope},
			Direct: true,
		}, nil
	}

	stored, err := s.tokenStore.GetAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			result = BearerResultUnknown
			return nil, ErrInvalidToken("Invalid access token")
		}
		result = BearerResultError
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}

	if stored.Expired(s.now()) {
		result = BearerResultExpired
		return nil, ErrInvalidToken("Access token expired")
	}

	instrumentation.AddOAuthFlowAttributes(span, stored.ClientID, JoinScopes(stored.Scopes))
	return &Principal{
		Token:    stored.Token,
		UserID:   stored.UserID,
		ClientID: stored.ClientID,
		Scopes:   stored.Scopes,
	}, nil
}
