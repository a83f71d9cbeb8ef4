package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/blueberrycongee/chatrelay/internal/blob"
	"github.com/blueberrycongee/chatrelay/internal/config"
	"github.com/blueberrycongee/chatrelay/internal/quota"
	"github.com/blueberrycongee/chatrelay/internal/secret"
	"github.com/blueberrycongee/chatrelay/internal/secret/env"
	"github.com/blueberrycongee/chatrelay/internal/secret/vault"
)

type quotaStore interface {
	quota.Store
	io.Closer
}

// newQuotaStore opens the configured quota backend. The stats provider is
// non-nil only for SQL-backed stores.
func newQuotaStore(ctx context.Context, cfg config.QuotaConfig) (quotaStore, dbStatsProvider, error) {
	switch cfg.Store {
	case "", config.StoreMemory:
		return quota.NewMemoryStore(), nil, nil
	case config.StoreRedis:
		rs, err := quota.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("redis quota store: %w", err)
		}
		return rs, nil, nil
	case config.StorePostgres:
		ps, err := quota.NewPostgresStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres quota store: %w", err)
		}
		return ps, ps, nil
	default:
		return nil, nil, fmt.Errorf("unknown quota store %q", cfg.Store)
	}
}

// newSecretManager registers env:// always and vault:// when enabled.
func newSecretManager(cfg config.SecretsConfig, logger *slog.Logger) (*secret.Manager, error) {
	m := secret.NewManager()
	m.Register("env", env.New())

	if cfg.Vault.Enabled {
		vp, err := vault.New(cfg.Vault.Config, logger)
		if err != nil {
			return nil, fmt.Errorf("vault secret provider: %w", err)
		}
		m.Register("vault", secret.NewCachedProvider(vp, cfg.CacheTTL))
		logger.Info("vault secret provider enabled", "address", cfg.Vault.Address)
	}
	return m, nil
}

// newBlobStore returns nil when attachment references are disabled.
func newBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	s, err := blob.NewS3Store(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("s3 blob store: %w", err)
	}
	return s, nil
}
