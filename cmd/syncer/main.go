package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/storm-data-sync/internal/adapter/kafka"
	redisadapter "github.com/couchcryptid/storm-data-sync/internal/adapter/redis"
	"github.com/couchcryptid/storm-data-sync/internal/config"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/jobs"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
	"github.com/couchcryptid/storm-data-sync/internal/scheduler"
	"github.com/jonboulle/clockwork"
)

type changePublisher interface {
	domain.ChangePublisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisadapter.NewClient(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	stores := jobs.RedisStores(rdb, cfg.RedisKeyPrefix)

	// Change publishing is feature-flagged via KAFKA_BROKERS.
	var publisher changePublisher = kafkaadapter.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafkaadapter.NewPublisher(cfg, metrics, logger)
		logger.Info("change publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaChangesTopic)
	} else {
		logger.Info("change publishing disabled")
	}

	clock := clockwork.NewRealClock()
	sched := scheduler.New(clock, metrics, logger, jobs.Build(jobs.Deps{
		Config:    cfg,
		Stores:    stores,
		Publisher: publisher,
		Clock:     clock,
		Metrics:   metrics,
		Logger:    logger,
	})...)

	srv := httpadapter.NewServer(cfg.HTTPAddr,
		httpadapter.Readiness(redisadapter.NewPinger(rdb), sched),
		sched,
		httpadapter.Stores{Events: stores.Events, Wildfires: stores.Wildfires, Droughts: stores.Droughts},
		logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start job scheduler.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown timeout")
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka publisher close error", "error", err)
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("shutdown complete")
}
