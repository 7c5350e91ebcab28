package oauth

import (
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/security"
	"github.com/lsendel/llmrank-mcp-gateway/server"
)

// AuthenticationStrategy authenticates the resource owner at the
// authorization endpoint for an already validated request.
//
// A non-nil identity lets the flow continue to code issuance. An error is
// written as an OAuth JSON error. A nil identity with a nil error means the
// strategy wrote the response itself, e.g. by rendering a sign-in page.
type AuthenticationStrategy interface {
	Mode() string
	Authenticate(w http.ResponseWriter, r *http.Request, req *server.AuthorizationRequest) (*server.Identity, error)
}

// HeaderAuthenticator trusts an API token supplied in a request header. The
// header's presence is the only authentication signal at this layer.
type HeaderAuthenticator struct {
	Header string
}

var _ AuthenticationStrategy = (*HeaderAuthenticator)(nil)

// Mode implements AuthenticationStrategy.
func (a *HeaderAuthenticator) Mode() string { return AuthModeHeader }

// Authenticate implements AuthenticationStrategy.
func (a *HeaderAuthenticator) Authenticate(_ http.ResponseWriter, r *http.Request, req *server.AuthorizationRequest) (*server.Identity, error) {
	token := r.Header.Get(a.Header)
	if token == "" {
		return nil, ErrAccessDenied("Authentication required")
	}
	return &server.Identity{UserID: token, Scopes: req.Scopes}, nil
}

// parseAuthorizationRequest reads the OAuth parameters from the query string
// (GET) or the form body (POST).
func parseAuthorizationRequest(r *http.Request) (*server.AuthorizationRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, ErrInvalidRequest("Malformed request")
	}
	params := r.Form
	if r.Method == http.MethodPost {
		params = r.PostForm
	}
	return authorizationRequestFromValues(params), nil
}

func authorizationRequestFromValues(v url.Values) *server.AuthorizationRequest {
	return &server.AuthorizationRequest{
		ResponseType:        v.Get("response_type"),
		ClientID:            v.Get("client_id"),
		RedirectURI:         v.Get("redirect_uri"),
		Scope:               v.Get("scope"),
		State:               v.Get("state"),
		CodeChallenge:       v.Get("code_challenge"),
		CodeChallengeMethod: v.Get("code_challenge_method"),
	}
}

// ServeAuthorization handles the authorization endpoint: validate, authenticate,
// issue a code and redirect back to the client.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "oauth.http.authorize")
	defer span.End()
	r = r.WithContext(ctx)

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	req, err := parseAuthorizationRequest(r)
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}
	if err := h.server.ValidateAuthorizationRequest(req); err != nil {
		instrumentation.RecordError(span, err)
		h.logger.Debug("Authorization request rejected",
			"client_id", req.ClientID,
			"ip", clientIP,
			"error", err)
		h.writeOAuthError(w, err)
		return
	}
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, server.JoinScopes(req.Scopes))
	span.SetAttributes(attribute.String(instrumentation.AttrAuthMode, h.authenticator.Mode()))

	identity, err := h.authenticator.Authenticate(w, r, req)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.server.Auditor.LogAuthFailure(security.EventAuthFailure, req.ClientID, clientIP, server.AsOAuthError(err).Code)
		h.writeOAuthError(w, err)
		return
	}
	if identity == nil {
		return
	}

	authCode, err := h.server.IssueAuthorizationCode(ctx, req, *identity, h.authenticator.Mode(), clientIP)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.logger.Error("Failed to issue authorization code", "client_id", req.ClientID, "error", err)
		h.writeOAuthError(w, err)
		return
	}

	redirectURL, err := server.AuthorizationRedirectURL(req.RedirectURI, authCode.Code, req.State)
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.logger.Info("Authorization code issued",
		"client_id", req.ClientID,
		"auth_mode", h.authenticator.Mode(),
		"duration_ms", time.Since(startTime).Milliseconds())

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}
