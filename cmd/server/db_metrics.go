package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/blueberrycongee/chatrelay/internal/metrics"
)

const defaultDBStatsInterval = 30 * time.Second

// dbStatsProvider is implemented by SQL-backed quota stores.
type dbStatsProvider interface {
	DBStats() sql.DBStats
}

// startDBPoolMetrics publishes the pool statistics of provider right away
// and then every interval until ctx ends or the returned cancel is called.
func startDBPoolMetrics(ctx context.Context, provider dbStatsProvider, logger *slog.Logger, interval time.Duration) context.CancelFunc {
	if provider == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultDBStatsInterval
	}

	metrics.UpdateDBPoolStats(provider.DBStats())

	ctx, cancel := context.WithCancel(ctx)
	go pollDBPoolStats(ctx, provider, interval)

	logger.Debug("quota store pool metrics started", "interval", interval.String())
	return cancel
}

func pollDBPoolStats(ctx context.Context, provider dbStatsProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolStats(provider.DBStats())
		}
	}
}
