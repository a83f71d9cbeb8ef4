package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/blueberrycongee/chatrelay/internal/config"
	"github.com/blueberrycongee/chatrelay/internal/credential"
	"github.com/blueberrycongee/chatrelay/internal/provider"
)

const reloadTimeout = 30 * time.Second

// providerReloader re-applies the provider section of a reloaded config:
// endpoint overrides go to the registry and credentials are resolved again.
// Server, store and tracing settings only take effect on restart.
type providerReloader struct {
	registry *provider.Registry
	pool     *credential.Pool
	secrets  credential.Resolver
	catalog  []provider.Descriptor
	logger   *slog.Logger

	inProgress atomic.Bool
}

func newProviderReloader(registry *provider.Registry, pool *credential.Pool, secrets credential.Resolver, logger *slog.Logger) *providerReloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &providerReloader{
		registry: registry,
		pool:     pool,
		secrets:  secrets,
		catalog:  provider.DefaultCatalog(),
		logger:   logger,
	}
}

// Apply is registered with config.Manager.OnChange. A reload that arrives
// while another is running is skipped; the file watcher fires again on the
// next write.
func (r *providerReloader) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if !r.inProgress.CompareAndSwap(false, true) {
		r.logger.Warn("provider reload already in progress, skipping")
		return
	}
	defer r.inProgress.Store(false)

	if err := r.registry.ApplyOverrides(cfg.Overrides()); err != nil {
		r.logger.Error("provider overrides rejected", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	for _, err := range credential.Load(ctx, r.secrets, r.pool, cfg.CredentialSources(r.catalog), r.logger) {
		r.logger.Warn("credential reload failed", "error", err)
	}

	r.logger.Info("providers reloaded", "available", r.registry.AvailableProviders())
}
