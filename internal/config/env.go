package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "MCP_GATEWAY_"

// LoadDotEnv loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// envBinding maps one variable (without prefix) onto a config field.
type envBinding struct {
	name string
	set  func(cfg *Config, value string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func float(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"SHUTDOWN_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},

	{"ISSUER", str(func(c *Config) *string { return &c.OAuth.Issuer })},
	{"AUTH_MODE", str(func(c *Config) *string { return &c.OAuth.AuthMode })},
	{"IDENTITY_HEADER", str(func(c *Config) *string { return &c.OAuth.IdentityHeader })},
	{"SERVICE_NAME", str(func(c *Config) *string { return &c.OAuth.ServiceName })},
	{"RESOURCE_PATH", str(func(c *Config) *string { return &c.OAuth.ResourcePath })},
	{"CODE_TTL", duration(func(c *Config) *time.Duration { return &c.OAuth.AuthorizationCodeTTL })},
	{"ACCESS_TOKEN_TTL", duration(func(c *Config) *time.Duration { return &c.OAuth.AccessTokenTTL })},
	{"REFRESH_TOKEN_TTL", duration(func(c *Config) *time.Duration { return &c.OAuth.RefreshTokenTTL })},
	{"DIRECT_TOKEN_PREFIX", str(func(c *Config) *string { return &c.OAuth.DirectTokenPrefix })},
	{"DISABLE_DIRECT_TOKENS", boolean(func(c *Config) *bool { return &c.OAuth.DisableDirectTokens })},
	{"ALLOW_INSECURE_HTTP", boolean(func(c *Config) *bool { return &c.OAuth.AllowInsecureHTTP })},
	{"TRUST_PROXY", boolean(func(c *Config) *bool { return &c.OAuth.TrustProxy })},
	{"TRUSTED_PROXY_COUNT", integer(func(c *Config) *int { return &c.OAuth.TrustedProxyCount })},
	{"AUDIT_ENABLED", boolean(func(c *Config) *bool { return &c.OAuth.AuditEnabled })},

	{"PROVIDER_URL", str(func(c *Config) *string { return &c.Provider.BaseURL })},
	{"PROVIDER_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Provider.Timeout })},

	{"STORAGE_BACKEND", str(func(c *Config) *string { return &c.Storage.Backend })},
	{"VALKEY_ADDR", str(func(c *Config) *string { return &c.Storage.Valkey.Address })},
	{"VALKEY_PASSWORD", str(func(c *Config) *string { return &c.Storage.Valkey.Password })},
	{"VALKEY_DB", integer(func(c *Config) *int { return &c.Storage.Valkey.DB })},
	{"VALKEY_TLS", boolean(func(c *Config) *bool { return &c.Storage.Valkey.TLS })},
	{"REDIS_URL", str(func(c *Config) *string { return &c.Storage.Redis.URL })},
	{"DATABASE_DRIVER", str(func(c *Config) *string { return &c.Storage.Database.Driver })},
	{"DATABASE_DSN", str(func(c *Config) *string { return &c.Storage.Database.DSN })},
	{"ENCRYPTION_KEY", str(func(c *Config) *string { return &c.Storage.EncryptionKey })},
	{"ENCRYPTION_PASSPHRASE", str(func(c *Config) *string { return &c.Storage.EncryptionPassphrase })},

	{"RATE_LIMIT_ENABLED", boolean(func(c *Config) *bool { return &c.RateLimit.Enabled })},
	{"RATE_LIMIT_RPS", float(func(c *Config) *float64 { return &c.RateLimit.RequestsPerSecond })},
	{"RATE_LIMIT_BURST", integer(func(c *Config) *int { return &c.RateLimit.Burst })},

	{"OTEL_ENABLED", boolean(func(c *Config) *bool { return &c.Observability.Enabled })},
	{"METRICS_EXPORTER", str(func(c *Config) *string { return &c.Observability.MetricsExporter })},
	{"TRACES_EXPORTER", str(func(c *Config) *string { return &c.Observability.TracesExporter })},

	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
	{"DEBUG", boolean(func(c *Config) *bool { return &c.Logging.Debug })},
}

// applyEnv overlays every set MCP_GATEWAY_* variable onto cfg.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, b.name, err))
		}
	}
	return errors.Join(errs...)
}
