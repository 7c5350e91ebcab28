package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/security"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// Server implements the OAuth 2.1 protocol logic on top of the credential store.
type Server struct {
	tokenStore  storage.TokenStore
	clientStore storage.ClientStore
	flowStore   storage.FlowStore

	Auditor     *security.Auditor
	RateLimiter *security.RateLimiter // IP-based rate limiter
	Logger      *slog.Logger
	Config      *Config

	Instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	now func() time.Time
}

// New creates a new OAuth server
func New(
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	flowStore storage.FlowStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		tokenStore:  tokenStore,
		clientStore: clientStore,
		flowStore:   flowStore,
		Config:      applyDefaults(config, logger),
		Logger:      logger,
		now:         time.Now,
	}

	if err := srv.validateHTTPSEnforcement(); err != nil {
		return nil, err
	}

	return srv, nil
}

// SetClock replaces the time source used for every expiry computation.
func (s *Server) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// Now returns the current time of the server's clock.
func (s *Server) Now() time.Time {
	return s.now()
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the IP-based rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation enables metrics and tracing for server operations.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	} else {
		s.tracer = nil
	}
}

// startSpan starts a server span, or returns the current span when tracing is off.
func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

// withMetrics runs record when instrumentation is configured.
func (s *Server) withMetrics(record func(m *instrumentation.Metrics)) {
	if s.Instrumentation == nil {
		return
	}
	record(s.Instrumentation.Metrics())
}

// finishSpan marks span as failed when err is set.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		instrumentation.RecordError(span, err)
		return
	}
	instrumentation.SetSpanSuccess(span)
}
