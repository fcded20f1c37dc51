package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"hourlog/internal/api"
	"hourlog/internal/app"
	"hourlog/internal/config"
	"hourlog/internal/httpmiddleware"
	"hourlog/internal/queue"
)

func main() {
	cfg := config.Load()
	log := cfg.Logger()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg config.App, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log, app.WithMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.SeedOperator(ctx); err != nil {
		return err
	}

	// With the in-memory queue nobody else can drain the events, so the
	// worker loop runs in this process.
	if cfg.QueueBackend == "memory" {
		w := queue.NewWorker(a.Queue, a.Engine, log.WithField("component", "worker"))
		go func() {
			if _, err := w.Run(ctx); err != nil {
				log.WithError(err).Error("in-process worker stopped")
			}
		}()
	}

	router := api.Router(api.Deps{
		Service:   a.Service,
		Engine:    a.Engine,
		Operators: a.Operators,
		Signer:    a.Signer,
		Log:       log,
		Limiter:   httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, a.Metrics.RateLimited),
		Metrics:   promhttp.Handler(),
		Health:    healthChecks(a),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.HTTPPort, "store": cfg.StoreBackend}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}
	log.Info("server exited")
	return nil
}

func healthChecks(a *app.App) map[string]api.HealthCheck {
	health := map[string]api.HealthCheck{
		"store": func(ctx context.Context) bool {
			_, err := a.Engine.DailyPresence(ctx, "")
			return err == nil
		},
	}
	if a.Redis != nil {
		health["redis"] = a.Redis.Healthy
	}
	return health
}
