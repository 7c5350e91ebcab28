package oauth

import (
	"net/http"
	"time"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/security"
)

// Route paths.
const (
	PathAuthorizationServerMetadata = "/.well-known/oauth-authorization-server"
	PathProtectedResourceMetadata   = "/.well-known/oauth-protected-resource"
	PathAuthorize                   = "/oauth/authorize"
	PathToken                       = "/oauth/token"
	PathRegister                    = "/oauth/register"
)

// RegisterRoutes mounts the OAuth endpoints on mux and protects resource with
// ValidateToken at the configured resource path. Every route gets a request ID
// and HTTP metrics.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, resource http.Handler) {
	routes := []struct {
		pattern  string
		endpoint string
		handler  http.Handler
	}{
		{"GET " + PathAuthorizationServerMetadata, PathAuthorizationServerMetadata, http.HandlerFunc(h.ServeAuthorizationServerMetadata)},
		{"GET " + PathProtectedResourceMetadata, PathProtectedResourceMetadata, http.HandlerFunc(h.ServeProtectedResourceMetadata)},
		{"GET " + PathAuthorize, PathAuthorize, http.HandlerFunc(h.ServeAuthorization)},
		{"POST " + PathAuthorize, PathAuthorize, http.HandlerFunc(h.ServeAuthorization)},
		{"POST " + PathToken, PathToken, http.HandlerFunc(h.ServeToken)},
		{"POST " + PathRegister, PathRegister, http.HandlerFunc(h.ServeClientRegistration)},
	}
	if resource != nil {
		routes = append(routes, struct {
			pattern  string
			endpoint string
			handler  http.Handler
		}{h.config.ResourcePath, h.config.ResourcePath, h.ValidateToken(resource)})
	}

	for _, route := range routes {
		mux.Handle(route.pattern, security.RequestIDMiddleware(h.instrument(route.endpoint, route.handler)))
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Flush keeps streaming responses working through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (h *Handler) instrument(endpoint string, next http.Handler) http.Handler {
	if h.server.Instrumentation == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := h.startSpan(r.Context(), "oauth.http.request")
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, rec.status)
		h.recordHTTPMetrics(ctx, endpoint, r.Method, rec.status, start)
	})
}
