// Command alertmonitor runs the sliding-window ratio alerting loop
// (component H: Alert Monitor) as its own process.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/redisx"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/alertmonitor"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9091", mux); err != nil {
			slog.Error("alertmonitor metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	store := postgres.NewStore(pool)

	rdb, err := redisx.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Error("redis connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()
	cache := redisx.NewCache(rdb)

	monCfg := alertmonitor.Config{
		CheckInterval: cfg.AlertCheckInterval,
		WindowMinutes: cfg.AlertWindowMinutes,
		Threshold:     cfg.AlertThreshold,
		MinPosts:      cfg.AlertMinPosts,
		AlertsChannel: cfg.AlertsChannel,
	}
	mon := alertmonitor.New(monCfg, store, cache)

	slog.Info("alert monitor starting",
		slog.Duration("check_interval", monCfg.CheckInterval),
		slog.Int("window_minutes", monCfg.WindowMinutes),
		slog.Float64("threshold", monCfg.Threshold))
	mon.Run(ctx)
	slog.Info("alert monitor stopped")
}
