// Package mcpserver is the protected resource behind the gateway's bearer
// middleware. It speaks MCP over streamable HTTP and exposes tools that report
// the authenticated caller.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	oauth "github.com/lsendel/llmrank-mcp-gateway"
	"github.com/lsendel/llmrank-mcp-gateway/internal/util"
)

const (
	serverName = "llmrank-mcp-gateway"

	// tokenPrefixLen is how much of the bearer token whoami reveals.
	tokenPrefixLen = 8
)

// Server wraps an mcp-go server and its streamable HTTP transport.
type Server struct {
	mcpServer       *server.MCPServer
	httpServer      *server.StreamableHTTPServer
	supportedScopes []string
	logger          *slog.Logger
}

// New creates the MCP server. supportedScopes is reported by list_scopes.
func New(version string, supportedScopes []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:       mcpServer,
		supportedScopes: slices.Clone(supportedScopes),
		logger:          logger,
	}
	s.registerTools()

	s.httpServer = server.NewStreamableHTTPServer(mcpServer,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(principalContext),
	)
	return s
}

// ServeHTTP implements http.Handler. The request context must carry the
// principal attached by the bearer middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.ServeHTTP(w, r)
}

// principalContext carries the authenticated principal from the HTTP request
// into the context handed to tool handlers.
func principalContext(ctx context.Context, r *http.Request) context.Context {
	if p, ok := oauth.PrincipalFromContext(r.Context()); ok {
		return oauth.ContextWithPrincipal(ctx, p)
	}
	return ctx
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("whoami",
		mcp.WithDescription("Describe the authenticated caller: user, client, token kind and granted scopes"),
	), s.handleWhoAmI)

	s.mcpServer.AddTool(mcp.NewTool("list_scopes",
		mcp.WithDescription("List the scopes granted to the caller and every scope the gateway supports"),
	), s.handleListScopes)

	s.mcpServer.AddTool(mcp.NewTool("check_scope",
		mcp.WithDescription("Report whether the caller holds a scope"),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("Scope to check, e.g. projects:read"),
		),
	), s.handleCheckScope)
}

type whoAmIResult struct {
	UserID      string   `json:"user_id"`
	ClientID    string   `json:"client_id,omitempty"`
	TokenPrefix string   `json:"token_prefix"`
	Direct      bool     `json:"direct"`
	Scopes      []string `json:"scopes"`
}

func (s *Server) handleWhoAmI(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, ok := oauth.PrincipalFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("No authenticated principal"), nil
	}

	return jsonResult(whoAmIResult{
		UserID:      util.SafeTruncate(p.UserID, tokenPrefixLen),
		ClientID:    p.ClientID,
		TokenPrefix: util.SafeTruncate(p.Token, tokenPrefixLen),
		Direct:      p.Direct,
		Scopes:      p.Scopes,
	})
}

type listScopesResult struct {
	Granted   []string `json:"granted"`
	Supported []string `json:"supported"`
}

func (s *Server) handleListScopes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, ok := oauth.PrincipalFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("No authenticated principal"), nil
	}

	granted := p.Scopes
	if p.HasScope(oauth.WildcardScope) {
		granted = s.supportedScopes
	}
	return jsonResult(listScopesResult{Granted: granted, Supported: s.supportedScopes})
}

func (s *Server) handleCheckScope(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, ok := oauth.PrincipalFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("No authenticated principal"), nil
	}

	scope, err := request.RequireString("scope")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !slices.Contains(s.supportedScopes, scope) {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown scope: %s", scope)), nil
	}

	if p.HasScope(scope) {
		return mcp.NewToolResultText(fmt.Sprintf("granted: %s", scope)), nil
	}
	s.logger.Debug("Scope check denied", "scope", scope, "client_id", p.ClientID)
	return mcp.NewToolResultText(fmt.Sprintf("denied: %s", scope)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
