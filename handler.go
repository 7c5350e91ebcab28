package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/internal/util"
	"github.com/lsendel/llmrank-mcp-gateway/security"
	"github.com/lsendel/llmrank-mcp-gateway/server"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

const (
	tokenTypeBearer = "Bearer"

	// maxRequestBodySize caps token and registration request bodies.
	maxRequestBodySize = 64 << 10

	rateLimitRetryAfter = "60"
)

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server        *server.Server
	config        HandlerConfig
	authenticator AuthenticationStrategy
	logger        *slog.Logger
	tracer        trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, config HandlerConfig, logger *slog.Logger) (*Handler, error) {
	if srv == nil {
		return nil, fmt.Errorf("server is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	h := &Handler{
		server: srv,
		config: config,
		logger: logger,
	}

	switch config.AuthMode {
	case AuthModeConsent:
		h.authenticator = newConsentAuthenticator(h, config.Provider)
	default:
		h.authenticator = &HeaderAuthenticator{Header: config.IdentityHeader}
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h, nil
}

// Endpoint URLs derived from the issuer.

func (h *Handler) issuer() string { return util.NormalizeURL(h.server.Config.Issuer) }

func (h *Handler) endpointURL(path string) string { return util.JoinURL(h.issuer(), path) }

// ProtectedResourceMetadataURL is advertised in WWW-Authenticate challenges.
func (h *Handler) ProtectedResourceMetadataURL() string {
	return h.endpointURL(PathProtectedResourceMetadata)
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	h.writeJSON(w, http.StatusOK, AuthorizationServerMetadata{
		Issuer:                            h.issuer(),
		AuthorizationEndpoint:             h.endpointURL(PathAuthorize),
		TokenEndpoint:                     h.endpointURL(PathToken),
		RegistrationEndpoint:              h.endpointURL(PathRegister),
		ScopesSupported:                   h.server.Config.SupportedScopes,
		ResponseTypesSupported:            []string{server.ResponseTypeCode},
		GrantTypesSupported:               []string{server.GrantTypeAuthorizationCodeName, server.GrantTypeRefreshTokenName},
		TokenEndpointAuthMethodsSupported: []string{server.DefaultTokenEndpointAuthMethod},
		CodeChallengeMethodsSupported:     []string{storage.PKCEMethodS256},
	})
}

// ServeProtectedResourceMetadata serves RFC 9728 Protected Resource Metadata
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	h.writeJSON(w, http.StatusOK, ProtectedResourceMetadata{
		Resource:               h.endpointURL(h.config.ResourcePath),
		AuthorizationServers:   []string{h.issuer()},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        h.server.Config.SupportedScopes,
	})
}

// ServeToken handles the token endpoint. Bodies may be form-encoded or JSON.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r.Context(), "oauth.http.token")
	defer span.End()

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	req, err := parseTokenRequest(w, r)
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}
	span.SetAttributes(attribute.String(instrumentation.AttrGrantType, req.GrantType))

	resp, err := h.server.Token(ctx, req, clientIP)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.logTokenFailure(req, clientIP, err)
		h.writeOAuthError(w, err)
		return
	}

	instrumentation.SetSpanSuccess(span)
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	h.writeJSON(w, http.StatusOK, resp)
}

// parseTokenRequest reads the token parameters from a JSON or form body.
func parseTokenRequest(w http.ResponseWriter, r *http.Request) (server.TokenRequest, error) {
	var req server.TokenRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, ErrInvalidRequest("Malformed JSON body")
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, ErrInvalidRequest("Malformed form body")
	}
	req = server.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		ClientID:     r.PostForm.Get("client_id"),
	}
	if req.ClientID == "" {
		if user, _, ok := r.BasicAuth(); ok {
			req.ClientID = user
		}
	}
	return req, nil
}

func (h *Handler) logTokenFailure(req server.TokenRequest, clientIP string, err error) {
	oauthErr := server.AsOAuthError(err)
	if oauthErr.Code == ErrorCodeServerError {
		h.logger.Error("Token request failed",
			"grant_type", req.GrantType,
			"ip", clientIP,
			"error", err)
		return
	}
	h.logger.Debug("Token request rejected",
		"grant_type", req.GrantType,
		"client_id", req.ClientID,
		"ip", clientIP,
		"error", oauthErr.Code)
}

// ServeClientRegistration handles dynamic client registration (RFC 7591).
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r.Context(), "oauth.http.register")
	defer span.End()

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	var req ClientRegistrationRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil && err != io.EOF {
		h.writeOAuthError(w, ErrInvalidRequest("Malformed JSON body"))
		return
	}

	client, err := h.server.RegisterClient(ctx, req, clientIP)
	if err != nil {
		instrumentation.RecordError(span, err)
		if server.AsOAuthError(err).Code == ErrorCodeServerError {
			h.logger.Error("Client registration failed", "ip", clientIP, "error", err)
		}
		h.writeOAuthError(w, err)
		return
	}

	instrumentation.SetSpanSuccess(span)
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	h.writeJSON(w, http.StatusCreated, client)
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.server.RateLimiter == nil || h.server.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", r.URL.Path)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), r.URL.Path)
	}
	h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)
	instrumentation.SetSpanError(trace.SpanFromContext(r.Context()), "rate limit exceeded")

	w.Header().Set("Retry-After", rateLimitRetryAfter)
	h.writeOAuthError(w, ErrRateLimitExceeded("Rate limit exceeded. Please try again later."))
	return true
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// writeOAuthError writes err as an OAuth error body. Errors that are not
// *OAuthError become a generic server_error.
func (h *Handler) writeOAuthError(w http.ResponseWriter, err error) {
	oauthErr := server.AsOAuthError(err)
	if oauthErr.Status == http.StatusUnauthorized && oauthErr.Code == ErrorCodeInvalidToken {
		h.writeUnauthorizedError(w, oauthErr.Code, oauthErr.Description)
		return
	}
	h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	h.writeJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

// writeUnauthorizedError writes a 401 with an RFC 6750 challenge pointing at
// the protected resource metadata (RFC 9728 section 5.1).
//
//	WWW-Authenticate: Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource",
//	                         error="invalid_token",
//	                         error_description="Access token expired"
func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, code, description string) {
	w.Header().Set("WWW-Authenticate", h.formatWWWAuthenticate(code, description))
	h.writeError(w, code, description, http.StatusUnauthorized)
}

func (h *Handler) formatWWWAuthenticate(errCode, errorDesc string) string {
	params := []string{fmt.Sprintf("resource_metadata=%q", h.ProtectedResourceMetadataURL())}
	if errCode != "" {
		params = append(params, fmt.Sprintf("error=%q", errCode))
	}
	if errorDesc != "" {
		params = append(params, fmt.Sprintf("error_description=%q", errorDesc))
	}
	return tokenTypeBearer + " " + strings.Join(params, ", ")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return h.tracer.Start(ctx, name)
}

// recordHTTPMetrics records HTTP request metrics.
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}
	duration := float64(time.Since(startTime).Microseconds()) / 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
