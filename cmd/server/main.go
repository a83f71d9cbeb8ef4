// Package main is the entry point for the chatrelay dispatch server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/blueberrycongee/chatrelay/internal/api"
	"github.com/blueberrycongee/chatrelay/internal/config"
	"github.com/blueberrycongee/chatrelay/internal/credential"
	"github.com/blueberrycongee/chatrelay/internal/dispatch"
	"github.com/blueberrycongee/chatrelay/internal/observability"
	"github.com/blueberrycongee/chatrelay/internal/prompt"
	"github.com/blueberrycongee/chatrelay/internal/provider"
	"github.com/blueberrycongee/chatrelay/internal/provider/providers"
	"github.com/blueberrycongee/chatrelay/internal/quota"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(logger)
	logger.Info("starting chatrelay", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgManager, err := config.NewManager(configPath, logger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer cfgManager.Close()
	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	secrets, err := newSecretManager(cfg.Secrets, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := secrets.Close(); err != nil {
			logger.Warn("secret providers close failed", "error", err)
		}
	}()

	pool := credential.NewPool(credential.WithLogger(logger), dispatch.PoolHooks())
	for _, err := range credential.Load(ctx, secrets, pool, cfg.CredentialSources(provider.DefaultCatalog()), logger) {
		logger.Warn("credential load failed", "error", err)
	}

	registry := provider.NewRegistry(provider.DefaultCatalog(), pool)
	if err := registry.ApplyOverrides(cfg.Overrides()); err != nil {
		return fmt.Errorf("apply provider overrides: %w", err)
	}
	client := &http.Client{Timeout: cfg.Dispatch.RequestTimeout}
	providers.RegisterAll(registry, provider.Deps{
		Invoker: provider.NewInvoker(client, logger),
		Prompt: prompt.NewBuilder(
			prompt.WithLocation(loc),
			prompt.WithExcerpt(cfg.Dispatch.AttachmentExcerpt),
			prompt.WithAssistantName(cfg.Dispatch.AssistantName),
		),
		Tokens: provider.NewTokenCache(client),
	})

	store, dbStats, err := newQuotaStore(ctx, cfg.Quota)
	if err != nil {
		return err
	}
	defer store.Close()
	if stopPoolMetrics := startDBPoolMetrics(ctx, dbStats, logger, 0); stopPoolMetrics != nil {
		defer stopPoolMetrics()
	}
	ledger := quota.NewLedger(store, registry,
		quota.WithLocation(loc),
		quota.WithStoreTimeout(cfg.Quota.StoreTimeout),
		quota.WithLogger(logger),
	)

	blobs, err := newBlobStore(ctx, cfg.Blob)
	if err != nil {
		return err
	}

	tracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithMaxAttempts(cfg.Dispatch.MaxAttempts),
		dispatch.WithHistoryLimit(cfg.Dispatch.HistoryLimit),
		dispatch.WithTracer(tracing.Tracer()),
		dispatch.WithLogger(logger),
	}
	if blobs != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithBlobStore(blobs))
	}
	dispatcher := dispatch.New(registry, pool, ledger, dispatchOpts...)

	reloader := newProviderReloader(registry, pool, secrets, logger)
	cfgManager.OnChange(reloader.Apply)

	handler := api.NewHandler(dispatcher, logger,
		api.WithConfigController(cfgManager),
		api.WithMaxBodySize(cfg.Server.MaxBodyBytes),
	)
	mux, err := buildMux(cfg, handler)
	if err != nil {
		return err
	}
	httpHandler, err := buildHandler(cfg, mux)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"port", cfg.Server.Port,
			"available_providers", dispatcher.AvailableProviders(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
