package server

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/internal/util"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// Authentication modes recorded in audit events and metrics.
const (
	AuthModeHeader  = "header"
	AuthModeConsent = "consent"
)

// AuthorizationRequest holds the parameters of an authorization request.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	// Scopes is set by ValidateAuthorizationRequest. An absent scope parameter
	// resolves to every supported scope.
	Scopes []string
}

// Identity is the authenticated resource owner. UserID is the user's API token.
type Identity struct {
	UserID string
	Scopes []string
}

// ValidateAuthorizationRequest checks the request in order and returns the
// first failure. On success req.Scopes holds the granted scopes.
func (s *Server) ValidateAuthorizationRequest(req *AuthorizationRequest) error {
	if req.ResponseType != ResponseTypeCode {
		return ErrUnsupportedResponseType("Only response_type=code is supported")
	}
	if req.ClientID == "" {
		return ErrInvalidRequest("client_id is required")
	}
	if req.RedirectURI == "" {
		return ErrInvalidRequest("redirect_uri is required")
	}
	if req.CodeChallenge == "" || req.CodeChallengeMethod != storage.PKCEMethodS256 {
		return ErrInvalidRequest("code_challenge with code_challenge_method=S256 is required")
	}

	scopes := ParseScope(req.Scope)
	if len(scopes) == 0 {
		scopes = slices.Clone(s.Config.SupportedScopes)
	}
	if err := s.validateScopes(scopes); err != nil {
		return err
	}

	req.Scopes = scopes
	return nil
}

// IssueAuthorizationCode persists a single-use code bound to the request's PKCE
// challenge and redirect URI. The request must have been validated.
func (s *Server) IssueAuthorizationCode(ctx context.Context, req *AuthorizationRequest, identity Identity, authMode, clientIP string) (authCode *storage.AuthorizationCode, err error) {
	ctx, span := s.startSpan(ctx, "server.issue_authorization_code")
	defer span.End()
	defer func() { finishSpan(span, err) }()
	instrumentation.AddSecurityAttributes(s.Instrumentation, span, clientIP)

	if identity.UserID == "" {
		return nil, ErrAccessDenied("Authentication required")
	}

	scopes := identity.Scopes
	if len(scopes) == 0 {
		scopes = req.Scopes
	}

	code, err := GenerateToken(AuthorizationCodeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}

	authCode = &storage.AuthorizationCode{
		Code:                code,
		ClientID:            req.ClientID,
		UserID:              identity.UserID,
		Scopes:              scopes,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: storage.PKCEMethodS256,
		ExpiresAt:           s.now().Unix() + s.Config.AuthorizationCodeTTL,
	}

	if err := s.flowStore.SaveAuthorizationCode(ctx, authCode); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	scope := JoinScopes(scopes)
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, scope)
	span.SetAttributes(
		attribute.String(instrumentation.AttrAuthMode, authMode),
		attribute.String(instrumentation.AttrPKCEMethod, storage.PKCEMethodS256),
	)
	s.withMetrics(func(m *instrumentation.Metrics) { m.RecordCodeIssued(ctx, req.ClientID, authMode) })
	s.Auditor.LogCodeIssued(identity.UserID, req.ClientID, clientIP, scope, authMode)
	s.Logger.Debug("Issued authorization code",
		"client_id", req.ClientID,
		"code_prefix", util.SafeTruncate(code, 8),
		"auth_mode", authMode)

	return authCode, nil
}

// AuthorizationRedirectURL appends code and, when non-empty, state to
// redirectURI, keeping any query parameters it already carries.
func AuthorizationRedirectURL(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", ErrInvalidRequest("Invalid redirect_uri")
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
