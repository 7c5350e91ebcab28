package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/internal/util"
	"github.com/lsendel/llmrank-mcp-gateway/security"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// TokenTypeBearer is the token_type of every issued access token.
const TokenTypeBearer = "Bearer"

// GrantType enumerates the grants accepted by the token endpoint.
type GrantType int

const (
	GrantTypeAuthorizationCode GrantType = iota + 1
	GrantTypeRefreshToken
)

// String returns the grant_type parameter value.
func (g GrantType) String() string {
	switch g {
	case GrantTypeAuthorizationCode:
		return GrantTypeAuthorizationCodeName
	case GrantTypeRefreshToken:
		return GrantTypeRefreshTokenName
	default:
		return fmt.Sprintf("GrantType(%d)", int(g))
	}
}

// ParseGrantType maps a grant_type parameter onto a GrantType.
func ParseGrantType(s string) (GrantType, error) {
	switch s {
	case GrantTypeAuthorizationCodeName:
		return GrantTypeAuthorizationCode, nil
	case GrantTypeRefreshTokenName:
		return GrantTypeRefreshToken, nil
	case "":
		return 0, ErrInvalidRequest("grant_type is required")
	default:
		return 0, ErrUnsupportedGrantType(fmt.Sprintf("Unsupported grant type: %s", s))
	}
}

// TokenRequest holds the token endpoint parameters of both grants.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
}

// TokenResponse is the token endpoint success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Token dispatches a token request on its grant type.
func (s *Server) Token(ctx context.Context, req TokenRequest, clientIP string) (*TokenResponse, error) {
	grantType, err := ParseGrantType(req.GrantType)
	if err != nil {
		return nil, err
	}

	switch grantType {
	case GrantTypeAuthorizationCode:
		return s.ExchangeAuthorizationCode(ctx, req.Code, req.CodeVerifier, req.RedirectURI, req.ClientID, clientIP)
	case GrantTypeRefreshToken:
		return s.RefreshAccessToken(ctx, req.RefreshToken, req.ClientID, clientIP)
	default:
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("Unsupported grant type: %s", grantType))
	}
}

// ExchangeAuthorizationCode redeems a code for a token pair. The code is
// removed from the store before redirect_uri and PKCE are checked, so a code
// can never be redeemed twice even when those checks fail. clientID is
// optional; when present it must match the client the code was issued to.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, code, codeVerifier, redirectURI, clientID, clientIP string) (resp *TokenResponse, err error) {
	ctx, span := s.startSpan(ctx, "server.exchange_authorization_code")
	defer span.End()
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String(instrumentation.AttrGrantType, GrantTypeAuthorizationCodeName))
	instrumentation.AddSecurityAttributes(s.Instrumentation, span, clientIP)

	if code == "" || codeVerifier == "" || redirectURI == "" {
		return nil, ErrInvalidRequest("code, code_verifier and redirect_uri are required")
	}

	authCode, err := s.flowStore.TakeAuthorizationCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			s.Logger.Debug("Authorization code validation failed",
				"reason", "not_found_or_expired",
				"code_prefix", util.SafeTruncate(code, 8))
			s.Auditor.LogAuthFailure(security.EventInvalidGrant, clientID, clientIP, "invalid_authorization_code")
			return nil, ErrInvalidGrant("Invalid or expired authorization code")
		}
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	if clientID != "" && authCode.ClientID != clientID {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", authCode.ClientID,
			"provided_client_id", clientID)
		s.Auditor.LogAuthFailure(security.EventInvalidGrant, clientID, clientIP, "client_id_mismatch")
		return nil, ErrInvalidGrant("Invalid authorization code")
	}

	if authCode.RedirectURI != redirectURI {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "redirect_uri_mismatch",
			"expected_uri", authCode.RedirectURI,
			"provided_uri", redirectURI,
			"client_id", authCode.ClientID)
		s.Auditor.LogAuthFailure(security.EventInvalidRedirect, authCode.ClientID, clientIP, "redirect_uri_mismatch")
		return nil, ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	if !VerifyPKCEChallenge(codeVerifier, authCode.CodeChallenge) {
		s.withMetrics(func(m *instrumentation.Metrics) { m.RecordPKCEValidationFailed(ctx) })
		s.Auditor.LogAuthFailure(security.EventPKCEValidationFailed, authCode.ClientID, clientIP, "code_verifier_mismatch")
		return nil, ErrInvalidGrant("PKCE verification failed")
	}

	resp, err = s.issueTokenPair(ctx, authCode.UserID, authCode.ClientID, authCode.Scopes)
	if err != nil {
		return nil, err
	}

	instrumentation.AddOAuthFlowAttributes(span, authCode.ClientID, resp.Scope)
	s.withMetrics(func(m *instrumentation.Metrics) { m.RecordCodeExchange(ctx, authCode.ClientID) })
	s.Auditor.LogTokenIssued(authCode.UserID, authCode.ClientID, clientIP, resp.Scope)

	return resp, nil
}

// RefreshAccessToken rotates a refresh token: the presented token is consumed
// and a new pair with the same client, user and scopes is issued.
func (s *Server) RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientIP string) (resp *TokenResponse, err error) {
	ctx, span := s.startSpan(ctx, "server.refresh_access_token")
	defer span.End()
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String(instrumentation.AttrGrantType, GrantTypeRefreshTokenName))
	instrumentation.AddSecurityAttributes(s.Instrumentation, span, clientIP)

	if refreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}

	old, err := s.tokenStore.TakeRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			s.Logger.Debug("Refresh token validation failed",
				"reason", "not_found_or_expired",
				"token_prefix", util.SafeTruncate(refreshToken, 8))
			s.Auditor.LogAuthFailure(security.EventInvalidGrant, clientID, clientIP, "invalid_refresh_token")
			return nil, ErrInvalidGrant("Invalid or expired refresh token")
		}
		return nil, fmt.Errorf("failed to redeem refresh token: %w", err)
	}

	if clientID != "" && old.ClientID != clientID {
		s.Auditor.LogAuthFailure(security.EventInvalidGrant, clientID, clientIP, "client_id_mismatch")
		return nil, ErrInvalidGrant("Invalid refresh token")
	}

	resp, err = s.issueTokenPair(ctx, old.UserID, old.ClientID, old.Scopes)
	if err != nil {
		return nil, err
	}

	instrumentation.AddOAuthFlowAttributes(span, old.ClientID, resp.Scope)
	s.withMetrics(func(m *instrumentation.Metrics) { m.RecordTokenRefresh(ctx, old.ClientID) })
	s.Auditor.LogTokenRefreshed(old.UserID, old.ClientID, clientIP)

	return resp, nil
}

// issueTokenPair generates and persists an access and a refresh token. Both
// writes run concurrently and both must succeed before any token is returned.
func (s *Server) issueTokenPair(ctx context.Context, userID, clientID string, scopes []string) (*TokenResponse, error) {
	accessValue, err := GenerateToken(AccessTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshValue, err := GenerateToken(RefreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := s.now().Unix()
	access := &storage.Token{
		Token:     accessValue,
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: now + s.Config.AccessTokenTTL,
	}
	refresh := &storage.Token{
		Token:     refreshValue,
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: now + s.Config.RefreshTokenTTL,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.tokenStore.SaveAccessToken(gctx, access) })
	g.Go(func() error { return s.tokenStore.SaveRefreshToken(gctx, refresh) })
	if err := g.Wait(); err != nil {
		// Drop whichever half was written so no orphaned credential stays usable.
		cleanupCtx := context.WithoutCancel(ctx)
		_ = s.tokenStore.DeleteAccessToken(cleanupCtx, accessValue)
		_ = s.tokenStore.DeleteRefreshToken(cleanupCtx, refreshValue)
		return nil, fmt.Errorf("failed to persist token pair: %w", err)
	}

	return &TokenResponse{
		AccessToken:  accessValue,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    s.Config.AccessTokenTTL,
		RefreshToken: refreshValue,
		Scope:        JoinScopes(scopes),
	}, nil
}
