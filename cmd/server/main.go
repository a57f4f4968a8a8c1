package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjannette/hrp-allocator/internal/api"
	"github.com/kjannette/hrp-allocator/internal/app"
	"github.com/kjannette/hrp-allocator/internal/config"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/scheduler"
)

const banner = `
╔══════════════════════════════════════╗
║     HRP Portfolio Allocator v0.1     ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("[STARTUP] %v", err)
	}
	defer a.Close()

	// 1. API server
	srv := api.NewServer(api.Deps{
		Prices:      a.Prices,
		Allocations: a.Allocations,
		Updater:     a.Updater,
		DB:          a.Pool,
		Cache:       a.Cache,
		Metrics:     a.Metrics.Handler(),
		Benchmark:   cfg.BenchmarkTicker,
		Universe:    cfg.Universe(),
	}, api.Options{
		Port:          cfg.APIPort,
		APIKey:        cfg.APIKey,
		CORSOrigin:    cfg.CORSAllowOrigin,
		UpdateTimeout: cfg.RunTimeout(),
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("[API] Server error: %v", err)
		}
	}()

	// 2. Daily scheduler: one run now, then every day at SCHEDULE_AT
	hour, minute, _ := cfg.ScheduleClock()
	loc, _ := cfg.Location()
	sched := scheduler.NewDailyScheduler(func(ctx context.Context) error {
		_, err := a.Updater.Update(ctx)
		return err
	}, scheduler.DailyConfig{
		Hour:       hour,
		Minute:     minute,
		Location:   loc,
		RunTimeout: cfg.RunTimeout(),
	})
	sched.Start()

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("[API] Shutdown error: %v", err)
	}
	logger.Info("[API] Server closed")

	sched.Stop()
	fmt.Println("Shutdown complete")
}
