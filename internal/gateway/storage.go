package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/internal/config"
	"github.com/lsendel/llmrank-mcp-gateway/security"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
	"github.com/lsendel/llmrank-mcp-gateway/storage/database"
	"github.com/lsendel/llmrank-mcp-gateway/storage/memory"
	"github.com/lsendel/llmrank-mcp-gateway/storage/redis"
	"github.com/lsendel/llmrank-mcp-gateway/storage/valkey"
)

// pinger is implemented by backends that can report connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// openKV connects the configured backend. The returned closer releases it.
func openKV(cfg config.StorageConfig, inst *instrumentation.Instrumentation, logger *slog.Logger) (storage.KV, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		store := memory.New(memory.WithLogger(logger))
		store.SetInstrumentation(inst)
		return store, func() error { store.Stop(); return nil }, nil

	case config.BackendValkey:
		vcfg := valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
			Logger:    logger,
		}
		if cfg.Valkey.TLS {
			vcfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store, err := valkey.New(vcfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { store.Close(); return nil }, nil

	case config.BackendRedis:
		store, err := redis.New(redis.Config{
			URL:       cfg.Redis.URL,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.BackendDatabase:
		store, err := database.Open(database.Config{
			Driver: cfg.Database.Driver,
			DSN:    cfg.Database.DSN,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newEncryptor returns the at-rest encryptor, or nil when no key is configured.
func newEncryptor(cfg config.StorageConfig, issuer string) (*security.Encryptor, error) {
	var (
		key []byte
		err error
	)
	switch {
	case cfg.EncryptionKey != "":
		key, err = security.KeyFromBase64(cfg.EncryptionKey)
	case cfg.EncryptionPassphrase != "":
		// The issuer salts the derivation so two gateways sharing a
		// passphrase do not share a key.
		key, err = security.DeriveKey(cfg.EncryptionPassphrase, issuer)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return security.NewEncryptor(key)
}
