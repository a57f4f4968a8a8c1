// Package app assembles the service graph shared by the server and CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kjannette/hrp-allocator/internal/cache"
	"github.com/kjannette/hrp-allocator/internal/config"
	"github.com/kjannette/hrp-allocator/internal/db"
	"github.com/kjannette/hrp-allocator/internal/external"
	"github.com/kjannette/hrp-allocator/internal/ingest"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/metrics"
	"github.com/kjannette/hrp-allocator/internal/notifications"
	"github.com/kjannette/hrp-allocator/internal/optimizer"
	"github.com/kjannette/hrp-allocator/internal/rebalance"
	"github.com/kjannette/hrp-allocator/internal/repository"
	"github.com/kjannette/hrp-allocator/internal/risk"
	"github.com/kjannette/hrp-allocator/internal/updater"
)

type App struct {
	Config      *config.Config
	Pool        *pgxpool.Pool
	Prices      *repository.PriceRepo
	Allocations *repository.AllocationRepo
	Cache       *cache.Cache
	Metrics     *metrics.Metrics
	Notifier    *notifications.Sender
	Rebalancer  *rebalance.Orchestrator
	Updater     *updater.Updater

	redis *redis.Client
}

// New connects to Postgres (and Redis when configured), applies the schema
// and wires the update cycle.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	logger.Info("[DB] Connecting to %s:%d/%s ...", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &App{Config: cfg, Pool: pool}

	if err := db.TestConnection(ctx, pool); err != nil {
		a.Close()
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("[CACHE] Redis unavailable, caching disabled: %v", err)
		} else {
			a.redis = rdb
		}
	}

	a.Prices = repository.NewPriceRepo(pool)
	a.Allocations = repository.NewAllocationRepo(pool)
	a.Cache = cache.New(a.redis, cfg.CacheTTL())
	a.Metrics = metrics.New()
	a.Notifier = notifications.NewSender(cfg.WebhookURL, cfg.BotName)

	universe := cfg.Universe()
	a.Rebalancer = rebalance.NewOrchestrator(
		a.Prices,
		a.Allocations,
		newOptimizer(cfg),
		risk.NewGuardian(risk.Limits{Universe: universe}),
		rebalance.Config{
			Universe:     universe,
			CadenceDays:  cfg.RebalanceCadenceDays,
			RiskFreeRate: cfg.RiskFreeRate,
			Location:     loc,
		},
	)

	pipeline := ingest.NewPipeline(newFeed(cfg), a.Prices, ingest.WithLocation(loc))
	a.Updater = updater.New(pipeline, a.Rebalancer, a.Cache, a.Metrics, a.Notifier, updater.Config{
		Tickers:       cfg.Tickers,
		LookbackYears: cfg.LookbackYears,
	})

	return a, nil
}

func (a *App) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
		logger.Info("[DB] Connection pool closed")
	}
}

func newFeed(cfg *config.Config) ingest.Feed {
	if cfg.FeedProvider == "alphavantage" {
		return external.NewAlphaVantageClient(cfg.AlphaVantageAPIKey, external.AlphaVantageOptions{})
	}
	return external.NewEODHDClient(cfg.EODHDAPIKey, external.EODHDOptions{})
}

func newOptimizer(cfg *config.Config) rebalance.Optimizer {
	if cfg.OptimizerURL != "" {
		return external.NewOptimizerClient(cfg.OptimizerURL)
	}
	return optimizer.EqualWeight{}
}
