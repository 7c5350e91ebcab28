package server

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/security"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// Registration defaults (RFC 7591 section 2).
const (
	ClientIDPrefix                 = "client_"
	DefaultClientName              = "MCP Client"
	DefaultTokenEndpointAuthMethod = "none"
)

// Grant and response type identifiers.
const (
	GrantTypeAuthorizationCodeName = "authorization_code"
	GrantTypeRefreshTokenName      = "refresh_token"
	ResponseTypeCode               = "code"
)

// ClientRegistration is the body of a dynamic client registration request.
type ClientRegistration struct {
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// RegisterClient validates and persists a new public client. Every redirect URI
// is checked before anything is written; the first invalid one rejects the request.
func (s *Server) RegisterClient(ctx context.Context, req ClientRegistration, clientIP string) (client *storage.Client, err error) {
	ctx, span := s.startSpan(ctx, "server.register_client")
	defer span.End()
	defer func() { finishSpan(span, err) }()
	instrumentation.AddSecurityAttributes(s.Instrumentation, span, clientIP)

	for _, uri := range req.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			s.Auditor.LogAuthFailure(security.EventClientRegistrationRejected, "", clientIP, "invalid_redirect_uri")
			return nil, err
		}
	}

	suffix, err := GenerateToken(ClientIDBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client id: %w", err)
	}

	client = &storage.Client{
		ClientID:                ClientIDPrefix + suffix,
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		Scope:                   req.Scope,
		ClientIDIssuedAt:        s.now().Unix(),
	}
	if client.ClientName == "" {
		client.ClientName = DefaultClientName
	}
	if client.RedirectURIs == nil {
		client.RedirectURIs = []string{}
	}
	if len(client.GrantTypes) == 0 {
		client.GrantTypes = []string{GrantTypeAuthorizationCodeName, GrantTypeRefreshTokenName}
	}
	if len(client.ResponseTypes) == 0 {
		client.ResponseTypes = []string{ResponseTypeCode}
	}
	if client.TokenEndpointAuthMethod == "" {
		client.TokenEndpointAuthMethod = DefaultTokenEndpointAuthMethod
	}

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to save client: %w", err)
	}

	span.SetAttributes(attribute.String(instrumentation.AttrClientID, client.ClientID))
	s.withMetrics(func(m *instrumentation.Metrics) { m.RecordClientRegistration(ctx) })
	s.Auditor.LogClientRegistered(client.ClientID, client.ClientName, clientIP, len(client.RedirectURIs))
	s.Logger.Info("Registered new client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"redirect_uris", len(client.RedirectURIs))

	return client, nil
}

// GetClient returns a registered client.
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return s.clientStore.GetClient(ctx, clientID)
}
