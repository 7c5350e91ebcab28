package oauth

import (
	"fmt"

	"github.com/lsendel/llmrank-mcp-gateway/providers"
	"github.com/lsendel/llmrank-mcp-gateway/server"
)

// Authentication modes of the authorization endpoint.
const (
	AuthModeHeader  = server.AuthModeHeader
	AuthModeConsent = server.AuthModeConsent
)

const (
	// DefaultIdentityHeader carries the caller's API token in header mode.
	DefaultIdentityHeader = "X-API-Token"

	// DefaultResourcePath is where the protected MCP endpoint is mounted.
	DefaultResourcePath = "/v1/mcp"

	// DefaultServiceName is shown on the consent page.
	DefaultServiceName = "LLM Rank"

	// WildcardScope is the scope granted to direct API tokens.
	WildcardScope = server.WildcardScope
)

// HandlerConfig configures the HTTP surface.
type HandlerConfig struct {
	// AuthMode selects how the authorization endpoint authenticates the
	// resource owner: AuthModeHeader (default) or AuthModeConsent.
	AuthMode string

	// IdentityHeader is read in header mode. Default: X-API-Token
	IdentityHeader string

	// Provider signs users in and mints their API token in consent mode.
	Provider providers.IdentityProvider

	// ResourcePath is the path of the protected resource. Default: /v1/mcp
	ResourcePath string

	// ServiceName is the product name shown on the consent page.
	ServiceName string
}

func (c *HandlerConfig) applyDefaults() error {
	if c.AuthMode == "" {
		c.AuthMode = AuthModeHeader
	}
	if c.IdentityHeader == "" {
		c.IdentityHeader = DefaultIdentityHeader
	}
	if c.ResourcePath == "" {
		c.ResourcePath = DefaultResourcePath
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}

	switch c.AuthMode {
	case AuthModeHeader:
	case AuthModeConsent:
		if c.Provider == nil {
			return fmt.Errorf("consent mode requires an identity provider")
		}
	default:
		return fmt.Errorf("unknown auth mode %q (must be %q or %q)", c.AuthMode, AuthModeHeader, AuthModeConsent)
	}
	return nil
}
