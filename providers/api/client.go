// Package api implements providers.IdentityProvider against the dashboard's HTTP
// sign-in and token-issuance endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/internal/util"
	"github.com/lsendel/llmrank-mcp-gateway/providers"
)

const (
	// DefaultSignInPath is the email/password sign-in endpoint.
	DefaultSignInPath = "/api/auth/sign-in/email"

	// DefaultTokenPath is the API token issuance endpoint.
	DefaultTokenPath = "/api/tokens"

	// DefaultTokenType is sent as the "type" of minted tokens.
	DefaultTokenType = "mcp"

	// DefaultTimeout bounds each outbound call.
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 1 << 20

	// sessionTokenHeader carries a bearer session on sign-in responses that do not set cookies.
	sessionTokenHeader = "Set-Auth-Token"
)

// Config configures the identity API client.
type Config struct {
	// BaseURL is the dashboard API origin, e.g. "https://api.llmrank.app" (required).
	BaseURL string

	SignInPath string
	TokenPath  string
	TokenType  string

	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation
}

// Client is the HTTP implementation of providers.IdentityProvider.
type Client struct {
	baseURL    string
	signInPath string
	tokenPath  string
	tokenType  string
	httpClient *http.Client
	logger     *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

var _ providers.IdentityProvider = (*Client)(nil)

// New creates an identity API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("identity API base URL is required")
	}

	c := &Client{
		baseURL:         util.NormalizeURL(cfg.BaseURL),
		signInPath:      cfg.SignInPath,
		tokenPath:       cfg.TokenPath,
		tokenType:       cfg.TokenType,
		httpClient:      cfg.HTTPClient,
		logger:          cfg.Logger,
		instrumentation: cfg.Instrumentation,
	}
	if c.signInPath == "" {
		c.signInPath = DefaultSignInPath
	}
	if c.tokenPath == "" {
		c.tokenPath = DefaultTokenPath
	}
	if c.tokenType == "" {
		c.tokenType = DefaultTokenType
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.instrumentation != nil {
		c.tracer = c.instrumentation.Tracer("provider")
	}
	return c, nil
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token string `json:"token"`
}

// SignIn posts the credentials to the sign-in endpoint. The session is taken from
// Set-Cookie headers, a Set-Auth-Token header, or a "token" field in the body.
func (c *Client) SignIn(ctx context.Context, email, password string) (_ *providers.Session, err error) {
	ctx, span := c.startSpan(ctx, "sign_in")
	defer span.End()

	status := 0
	start := time.Now()
	defer func() { c.record(ctx, span, "sign_in", status, start, err) }()

	resp, err := c.postJSON(ctx, c.signInPath, signInRequest{Email: email, Password: password}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrUpstream, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return nil, providers.ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: sign-in returned status %d", providers.ErrUpstream, resp.StatusCode)
	}

	session := &providers.Session{
		Cookies:     resp.Cookies(),
		BearerToken: resp.Header.Get(sessionTokenHeader),
	}

	var body signInResponse
	if data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize)); readErr == nil && len(data) > 0 {
		if json.Unmarshal(data, &body) == nil && session.BearerToken == "" {
			session.BearerToken = body.Token
		}
	}

	if session.Empty() {
		return nil, fmt.Errorf("%w: sign-in response carried no session", providers.ErrUpstream)
	}
	return session, nil
}

type mintRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type mintResponse struct {
	Data struct {
		Plaintext string `json:"plaintext"`
	} `json:"data"`
	Token string `json:"token"`
}

// MintAPIToken creates a named API token with the session attached. The plaintext
// is read from data.plaintext, falling back to a top-level "token" field.
func (c *Client) MintAPIToken(ctx context.Context, session *providers.Session, name string) (_ string, err error) {
	ctx, span := c.startSpan(ctx, "mint_api_token")
	defer span.End()

	status := 0
	start := time.Now()
	defer func() { c.record(ctx, span, "mint_api_token", status, start, err) }()

	if session.Empty() {
		return "", fmt.Errorf("%w: no session", providers.ErrTokenIssuance)
	}

	resp, err := c.postJSON(ctx, c.tokenPath, mintRequest{Name: name, Type: c.tokenType}, session)
	if err != nil {
		return "", fmt.Errorf("%w: %v", providers.ErrTokenIssuance, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: token endpoint returned status %d", providers.ErrTokenIssuance, resp.StatusCode)
	}

	var body mintResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: invalid response: %v", providers.ErrTokenIssuance, err)
	}

	token := body.Data.Plaintext
	if token == "" {
		token = body.Token
	}
	if token == "" {
		return "", fmt.Errorf("%w: response carried no token", providers.ErrTokenIssuance)
	}

	c.logger.Debug("Minted API token", "name", name, "token_prefix", util.SafeTruncate(token, 5))
	return token, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, session *providers.Session) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, util.JoinURL(c.baseURL, path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	session.Apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", strings.TrimPrefix(path, "/"), err)
	}
	return resp, nil
}

func (c *Client) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return c.tracer.Start(ctx, "provider."+operation,
		trace.WithAttributes(attribute.String(instrumentation.AttrProviderOperation, operation)))
}

func (c *Client) record(ctx context.Context, span trace.Span, operation string, status int, start time.Time, err error) {
	if c.instrumentation == nil {
		return
	}
	instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrProviderStatus, status))
	if err != nil {
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	durationMs := float64(time.Since(start).Microseconds()) / 1000
	c.instrumentation.Metrics().RecordProviderAPICall(ctx, operation, status, durationMs, err)
}
