package oauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/lsendel/llmrank-mcp-gateway/server"
)

type contextKey string

const principalKey contextKey = "principal"

const bearerPrefix = "Bearer "

// PrincipalFromContext returns the principal attached by ValidateToken.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// ContextWithPrincipal attaches p to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// ValidateToken is middleware that requires a valid bearer token and attaches
// the resolved Principal to the request context.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := h.clientIP(r)
		if h.checkIPRateLimit(w, r, clientIP) {
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			if h.server.Instrumentation != nil {
				h.server.Instrumentation.Metrics().RecordBearerValidation(r.Context(), server.BearerResultMissing)
			}
			h.writeUnauthorizedError(w, ErrorCodeInvalidToken, "Missing or invalid Authorization header")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		principal, err := h.server.ValidateAccessToken(r.Context(), token)
		if err != nil {
			if server.AsOAuthError(err).Code == ErrorCodeServerError {
				h.logger.Error("Token validation failed", "ip", clientIP, "error", err)
			} else {
				h.logger.Debug("Token validation failed", "ip", clientIP, "error", err)
			}
			h.writeOAuthError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}
