package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"qrattend/internal/config"
	"qrattend/internal/logging"
	"qrattend/internal/queue"
	"qrattend/internal/report"
	"qrattend/internal/store"
)

// Worker consumes attendance events and folds them into the live counters.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.LogLevel, cfg.Production())

	if cfg.QueueBackend == "memory" {
		log.Fatal().Msg("QUEUE_BACKEND=memory is served in-process by the api; the worker needs redis or nats")
	}

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable at startup")
	}

	q, closeQueue, err := queue.Open(cfg.QueueBackend, queue.Options{
		Key:     cfg.QueueKey,
		Redis:   rdb.Client,
		NATSURL: cfg.NATSURL,
		Durable: "attendance-worker",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("queue init failed")
	}
	defer closeQueue()

	log.Info().Str("queue", cfg.QueueBackend).Str("key", cfg.QueueKey).Msg("worker started, waiting for events")
	if err := report.Fold(ctx, q, report.NewRedisCounters(rdb.Client)); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		return
	}
	log.Info().Msg("worker stopped")
}
