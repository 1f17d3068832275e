// Package main runs the perfkit performance layer as a standalone process:
// it wires the cache, recovery engine, session store and monitor together
// and serves metrics and health endpoints for the host to scrape.
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
	"time"

	"github.com/c360/perfkit/cache"
	"github.com/c360/perfkit/config"
	"github.com/c360/perfkit/health"
	"github.com/c360/perfkit/metric"
	"github.com/c360/perfkit/monitor"
	"github.com/c360/perfkit/recovery"
	"github.com/c360/perfkit/storage"
)

const (
	Version = "0.1.0"
	appName = "perfkit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML configuration")
		listenAddr = flag.String("listen", ":9465", "metrics/health listen address")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
		validate   = flag.Bool("validate", false, "validate configuration and exit")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *validate {
		logger.Info("configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewRegistry()

	tiers, err := storage.OpenTiers(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	cacheManager, err := cache.New(tiers, cfg.Cache,
		cache.WithLogger(logger),
		cache.WithMetrics(registry),
	)
	if err != nil {
		return err
	}
	defer func() { _ = cacheManager.Close() }()

	engine := recovery.NewEngine(cfg.Recovery,
		recovery.WithLogger(logger),
		recovery.WithMetrics(registry),
	)

	sessions := recovery.NewSessionStore(durableTier(tiers), cfg.Session,
		recovery.WithSessionLogger(logger),
		recovery.WithSessionMetrics(registry),
	)
	defer func() { _ = sessions.Close() }()

	vitals := monitor.New(cfg.Monitor,
		monitor.WithLogger(logger),
		monitor.WithMetrics(registry),
		monitor.WithCacheStats(func(ctx context.Context) monitor.CacheStats {
			m := cacheManager.Metrics(ctx)
			return monitor.CacheStats{
				HitRate:         m.HitRate,
				EntryCount:      m.EntryCount,
				TotalSizeBytes:  m.TotalSizeBytes,
				AvgResponseTime: m.AvgResponseTime,
			}
		}),
		monitor.WithErrorRate(func() float64 {
			stats := engine.ErrorStats()
			return float64(stats.Total) / 100.0
		}),
	)
	if err := vitals.Start(); err != nil {
		return err
	}
	defer func() { _ = vitals.Stop() }()

	checks := []health.Check{
		health.EngineCheck(engine, 50),
		health.MonitorCheck(vitals),
	}
	for _, tier := range tiers {
		checks = append(checks, health.TierCheck(tier))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.Handle("/healthz", health.Handler(appName, checks))

	server := &http.Server{
		Addr:              *listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", *listenAddr, "version", Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Periodic cache maintenance: expiry sweep plus hot-entry promotion.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cacheManager.Optimize(ctx); err != nil {
					logger.Warn("cache optimization failed", "error", err)
				}
			}
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// durableTier picks the slowest durable tier for session backups, falling
// back to nil (memory-only backups) when none is configured.
func durableTier(tiers []storage.Tier) storage.Tier {
	for i := len(tiers) - 1; i >= 0; i-- {
		switch tiers[i].Name() {
		case "bulk", "local":
			return tiers[i]
		}
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
