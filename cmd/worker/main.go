package main

import (
	"context"
	"os/signal"
	"syscall"

	"hourlog/internal/app"
	"hourlog/internal/config"
	"hourlog/internal/queue"
)

// Worker consumes ledger events and refreshes the cached per-subject totals.
func main() {
	cfg := config.Load()
	log := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the API drains the in-memory queue itself")
	}

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open ledger failed")
	}
	defer a.Close()

	if !a.Redis.Healthy(ctx) {
		log.WithField("addr", cfg.RedisAddr).Warn("redis not available, worker will keep retrying")
	}

	log.Info("worker started, waiting for events")
	applied, err := queue.NewWorker(a.Queue, a.Engine, log).Run(ctx)
	if err != nil {
		log.WithError(err).Fatal("queue consume failed")
	}
	log.WithField("applied", applied).Info("worker stopped")
}
