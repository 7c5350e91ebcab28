// Package config loads the gateway binary's configuration from a YAML file,
// a .env file and MCP_GATEWAY_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendValkey   = "valkey"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

// Authorization modes, mirrored from the oauth package so the loader does not
// depend on it.
const (
	AuthModeHeader  = "header"
	AuthModeConsent = "consent"
)

// Config is the complete gateway configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	OAuth         OAuthConfig         `yaml:"oauth"`
	Provider      ProviderConfig      `yaml:"provider"`
	Storage       StorageConfig       `yaml:"storage"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// OAuthConfig configures the authorization server.
type OAuthConfig struct {
	// Issuer is the public base URL of the gateway (required).
	Issuer string `yaml:"issuer"`

	AuthMode       string `yaml:"authMode"`
	IdentityHeader string `yaml:"identityHeader"`
	ServiceName    string `yaml:"serviceName"`
	ResourcePath   string `yaml:"resourcePath"`

	AuthorizationCodeTTL time.Duration `yaml:"authorizationCodeTTL"`
	AccessTokenTTL       time.Duration `yaml:"accessTokenTTL"`
	RefreshTokenTTL      time.Duration `yaml:"refreshTokenTTL"`

	DirectTokenPrefix   string `yaml:"directTokenPrefix"`
	DisableDirectTokens bool   `yaml:"disableDirectTokens"`
	AllowInsecureHTTP   bool   `yaml:"allowInsecureHTTP"`
	TrustProxy          bool   `yaml:"trustProxy"`
	TrustedProxyCount   int    `yaml:"trustedProxyCount"`
	AuditEnabled        bool   `yaml:"auditEnabled"`
}

// ProviderConfig points at the dashboard identity API used in consent mode.
type ProviderConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	SignInPath string        `yaml:"signInPath"`
	TokenPath  string        `yaml:"tokenPath"`
	TokenType  string        `yaml:"tokenType"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig selects and configures the credential backend.
type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	Valkey   ValkeyConfig   `yaml:"valkey"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`

	// EncryptionKey is a base64 AES-256 key. EncryptionPassphrase derives one
	// with HKDF instead. At most one may be set.
	EncryptionKey        string `yaml:"encryptionKey"`
	EncryptionPassphrase string `yaml:"encryptionPassphrase"`
}

// ValkeyConfig configures storage/valkey.
type ValkeyConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
	TLS       bool   `yaml:"tls"`
}

// RedisConfig configures storage/redis.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// DatabaseConfig configures storage/database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RateLimitConfig configures per-IP limiting of the OAuth and MCP endpoints.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// ObservabilityConfig configures OpenTelemetry.
type ObservabilityConfig struct {
	Enabled         bool   `yaml:"enabled"`
	MetricsExporter string `yaml:"metricsExporter"`
	TracesExporter  string `yaml:"tracesExporter"`
	LogClientIPs    bool   `yaml:"logClientIPs"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Format string `yaml:"format"` // "json" or "text"
	Debug  bool   `yaml:"debug"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		OAuth: OAuthConfig{
			AuthMode:          AuthModeHeader,
			TrustedProxyCount: 1,
			AuditEnabled:      true,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Observability: ObservabilityConfig{
			MetricsExporter: "prometheus",
			TracesExporter:  "none",
		},
		Logging: LoggingConfig{
			Format: "json",
		},
	}
}

// Load reads the configuration with Read and validates it.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read builds the configuration from the defaults, the YAML file at path (if
// path is non-empty) and the environment, without validating it. Callers that
// apply further overrides validate afterwards.
func Read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.OAuth.Issuer == "" {
		errs = append(errs, errors.New("oauth.issuer is required"))
	} else if u, err := url.Parse(c.OAuth.Issuer); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("oauth.issuer must be an absolute URL: %q", c.OAuth.Issuer))
	}

	switch c.OAuth.AuthMode {
	case AuthModeHeader:
	case AuthModeConsent:
		if c.Provider.BaseURL == "" {
			errs = append(errs, errors.New("provider.baseURL is required in consent mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("oauth.authMode must be %q or %q, got %q", AuthModeHeader, AuthModeConsent, c.OAuth.AuthMode))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendValkey:
		if c.Storage.Valkey.Address == "" {
			errs = append(errs, errors.New("storage.valkey.address is required for the valkey backend"))
		}
	case BackendRedis:
		if c.Storage.Redis.URL == "" {
			errs = append(errs, errors.New("storage.redis.url is required for the redis backend"))
		}
	case BackendDatabase:
		if c.Storage.Database.DSN == "" {
			errs = append(errs, errors.New("storage.database.dsn is required for the database backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.Storage.EncryptionKey != "" && c.Storage.EncryptionPassphrase != "" {
		errs = append(errs, errors.New("set only one of storage.encryptionKey and storage.encryptionPassphrase"))
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rateLimit.requestsPerSecond and rateLimit.burst must be positive"))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// IsDefaultStorage reports whether credentials are kept in process memory only.
func (c *Config) IsDefaultStorage() bool {
	return strings.EqualFold(c.Storage.Backend, BackendMemory)
}
