// Package gateway assembles the authorization server, its HTTP surface and the
// protected MCP endpoint from a config.Config, and runs them with graceful
// shutdown.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	oauth "github.com/lsendel/llmrank-mcp-gateway"
	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/internal/config"
	"github.com/lsendel/llmrank-mcp-gateway/internal/mcpserver"
	"github.com/lsendel/llmrank-mcp-gateway/providers"
	"github.com/lsendel/llmrank-mcp-gateway/providers/api"
	"github.com/lsendel/llmrank-mcp-gateway/security"
	"github.com/lsendel/llmrank-mcp-gateway/server"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

const (
	// PathHealth is the liveness endpoint.
	PathHealth = "/health"

	// PathMetrics is the Prometheus scrape endpoint.
	PathMetrics = "/metrics"

	healthCheckTimeout = 2 * time.Second
)

// Gateway is a fully wired gateway.
type Gateway struct {
	cfg    config.Config
	logger *slog.Logger

	instrumentation *instrumentation.Instrumentation
	kv              storage.KV
	server          *server.Server
	handler         *oauth.Handler
	rateLimiter     *security.RateLimiter
	mux             *http.ServeMux

	closers []func() error
}

// New builds every component from cfg. cfg must have been validated.
func New(cfg config.Config, version string, logger *slog.Logger) (_ *Gateway, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{cfg: cfg, logger: logger, mux: http.NewServeMux()}
	defer func() {
		if err != nil {
			_ = g.Close(context.Background())
		}
	}()

	g.instrumentation, err = instrumentation.New(instrumentation.Config{
		ServiceName:     instrumentation.DefaultServiceName,
		ServiceVersion:  version,
		Enabled:         cfg.Observability.Enabled,
		LogClientIPs:    cfg.Observability.LogClientIPs,
		MetricsExporter: cfg.Observability.MetricsExporter,
		TracesExporter:  cfg.Observability.TracesExporter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	g.closers = append(g.closers, func() error {
		return g.instrumentation.Shutdown(context.Background())
	})

	kv, closeKV, err := openKV(cfg.Storage, g.instrumentation, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	g.kv = kv
	g.closers = append(g.closers, closeKV)
	if cfg.IsDefaultStorage() {
		logger.Warn("Using in-memory credential storage; tokens are lost on restart")
	}

	encryptor, err := newEncryptor(cfg.Storage, cfg.OAuth.Issuer)
	if err != nil {
		return nil, err
	}

	storeOpts := []storage.Option{
		storage.WithLogger(logger),
		storage.WithInstrumentation(g.instrumentation),
	}
	if encryptor != nil {
		storeOpts = append(storeOpts, storage.WithEncryptor(encryptor))
		logger.Info("Credential encryption at rest enabled")
	}
	store := storage.NewCredentialStore(kv, storeOpts...)

	g.server, err = server.New(store, store, store, serverConfig(cfg.OAuth), logger)
	if err != nil {
		return nil, err
	}
	g.server.SetInstrumentation(g.instrumentation)
	g.server.SetAuditor(security.NewAuditor(logger, cfg.OAuth.AuditEnabled))

	if cfg.RateLimit.Enabled {
		g.rateLimiter = security.NewRateLimiterWithConfig(security.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			Logger:            logger,
		})
		g.server.SetRateLimiter(g.rateLimiter)
		g.closers = append(g.closers, func() error { g.rateLimiter.Stop(); return nil })
	}

	provider, err := g.identityProvider()
	if err != nil {
		return nil, err
	}

	g.handler, err = oauth.NewHandler(g.server, oauth.HandlerConfig{
		AuthMode:       cfg.OAuth.AuthMode,
		IdentityHeader: cfg.OAuth.IdentityHeader,
		Provider:       provider,
		ResourcePath:   cfg.OAuth.ResourcePath,
		ServiceName:    cfg.OAuth.ServiceName,
	}, logger)
	if err != nil {
		return nil, err
	}

	mcp := mcpserver.New(version, g.server.Config.SupportedScopes, logger)
	g.handler.RegisterRoutes(g.mux, mcp)
	g.mux.HandleFunc("GET "+PathHealth, g.serveHealth)
	g.mux.Handle("GET "+PathMetrics, g.instrumentation.MetricsHandler())

	return g, nil
}

// serverConfig translates the file configuration into server.Config.
func serverConfig(c config.OAuthConfig) *server.Config {
	return &server.Config{
		Issuer:               c.Issuer,
		AuthorizationCodeTTL: seconds(c.AuthorizationCodeTTL),
		AccessTokenTTL:       seconds(c.AccessTokenTTL),
		RefreshTokenTTL:      seconds(c.RefreshTokenTTL),
		DirectTokenPrefix:    c.DirectTokenPrefix,
		DisableDirectTokens:  c.DisableDirectTokens,
		TrustProxy:           c.TrustProxy,
		TrustedProxyCount:    c.TrustedProxyCount,
		AllowInsecureHTTP:    c.AllowInsecureHTTP,
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// identityProvider returns the dashboard client in consent mode and nil otherwise.
func (g *Gateway) identityProvider() (providers.IdentityProvider, error) {
	if g.cfg.OAuth.AuthMode != config.AuthModeConsent {
		return nil, nil
	}

	var httpClient *http.Client
	if g.cfg.Provider.Timeout > 0 {
		httpClient = &http.Client{Timeout: g.cfg.Provider.Timeout}
	}
	client, err := api.New(api.Config{
		BaseURL:         g.cfg.Provider.BaseURL,
		SignInPath:      g.cfg.Provider.SignInPath,
		TokenPath:       g.cfg.Provider.TokenPath,
		TokenType:       g.cfg.Provider.TokenType,
		HTTPClient:      httpClient,
		Logger:          g.logger,
		Instrumentation: g.instrumentation,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}
	return client, nil
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.mux
}

// serveHealth reports liveness and, for networked backends, storage reachability.
func (g *Gateway) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if p, ok := g.kv.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			g.logger.Warn("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"status":"unhealthy"}`)
			return
		}
	}

	_, _ = io.WriteString(w, `{"status":"healthy"}`)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.cfg.Server.Addr, err)
	}
	return g.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully and
// releases every component.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           g.mux,
		ReadHeaderTimeout: g.cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("MCP gateway listening",
			"addr", ln.Addr().String(),
			"issuer", g.server.Config.Issuer,
			"auth_mode", g.cfg.OAuth.AuthMode,
			"storage", g.cfg.Storage.Backend)
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		_ = g.Close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	g.logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := g.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	g.logger.Info("Gateway stopped")
	return errors.Join(errs...)
}

// Close releases storage, rate limiter and telemetry in reverse order of
// creation. It is safe to call more than once.
func (g *Gateway) Close(_ context.Context) error {
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}
