// Command worker consumes the post log and produces sentiment analyses
// (component E: Worker Pool).
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
	"github.com/fairyhunter13/ai-cv-evaluator/internal/classifier"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/config"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/worker"
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
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
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

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

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
	logClient := redisx.NewLogClient(rdb)

	cls := buildClassifier(cfg)

	hostname, _ := os.Hostname()
	poolCfg := worker.Config{
		Stream:          cfg.LogStream,
		ConsumerGroup:   cfg.LogConsumerGroup,
		ConsumerName:    hostname,
		UpdatesChannel:  cfg.UpdatesChannel,
		BatchSize:       int64(cfg.WorkerBatchSize),
		BlockDuration:   cfg.WorkerBlock,
		ReclaimInterval: cfg.WorkerReclaimInterval,
		ReclaimMinIdle:  cfg.WorkerReclaimMinIdle,
		BackoffInitial:  cfg.WorkerBackoffInitial,
		BackoffMax:      cfg.WorkerBackoffMax,
		LogEvery:        100,
	}
	p := worker.NewPool(poolCfg, logClient, store, cls)

	slog.Info("worker pool starting", slog.String("consumer", hostname))
	if err := p.Run(ctx); err != nil {
		slog.Error("worker pool stopped with error", slog.Any("error", err))
	}
	slog.Info("worker stopped")
}

// buildClassifier assembles the Classifier capability set (component D)
// per cfg.ClassifierMode: local always runs as the fallback so a composite
// never has nowhere to degrade to.
func buildClassifier(cfg config.Config) domain.Classifier {
	local := classifier.NewLocal(cfg.ClassifierModel)
	if cfg.ClassifierMode != "external" {
		return local
	}
	ext := classifier.NewExternal(cfg.ClassifierModel, cfg.ClassifierAPIKey, cfg.ClassifierAPIURL, cfg.ClassifierTimeout)
	return classifier.NewComposite(ext, local, cfg.ClassifierModel)
}
