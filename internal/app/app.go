// Package app assembles the ledger stack from configuration. The API, the
// worker and the CLI all start from Open.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"hourlog/internal/attendance"
	"hourlog/internal/auth"
	"hourlog/internal/config"
	"hourlog/internal/metrics"
	"hourlog/internal/queue"
	"hourlog/internal/report"
	"hourlog/internal/store"
)

const (
	lockKey   = "hourlog:ledger-lock"
	lockTTL   = 10 * time.Second
	queueKey  = "hourlog:events"
	totalsKey = "hourlog:totals"
)

// App is a fully wired ledger.
type App struct {
	Config    config.App
	Log       logrus.FieldLogger
	Store     *store.RecordStore
	Service   *attendance.Service
	Engine    *report.Engine
	Operators *auth.Operators
	Signer    *auth.Signer
	Queue     queue.Queue
	Metrics   *metrics.Ledger
	// Redis and Cache are nil unless a Redis-backed lock or queue is configured.
	Redis *store.Redis
	Cache *report.HoursCache
}

// Option tweaks Open.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	backend    store.Backend
	now        func() time.Time
}

// WithMetrics registers the ledger collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithBackend bypasses STORE_BACKEND.
func WithBackend(b store.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithClock overrides the time source of the service and the engine.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// OpenBackend opens the storage selected by STORE_BACKEND.
func OpenBackend(ctx context.Context, cfg config.App) (store.Backend, error) {
	switch cfg.StoreBackend {
	case "csv":
		return store.OpenCSV(cfg.DataDir)
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Open builds every collaborator and creates missing tables.
func Open(ctx context.Context, cfg config.App, log logrus.FieldLogger, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log}
	if o.registerer != nil {
		a.Metrics = metrics.New(o.registerer)
	}

	backend := o.backend
	if backend == nil {
		if backend, err = OpenBackend(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.LockBackend == "redis" || cfg.QueueBackend == "redis" {
		a.Redis = store.NewRedis(cfg.RedisAddr)
		if !a.Redis.Healthy(ctx) {
			log.WithField("addr", cfg.RedisAddr).Warn("redis not reachable yet")
		}
		a.Cache = report.NewHoursCache(a.Redis.Client, totalsKey)
	}

	storeOpts := []store.Option{}
	if cfg.LockBackend == "redis" {
		storeOpts = append(storeOpts, store.WithLocker(a.Redis.NewLocker(lockKey, lockTTL)))
	}
	if a.Metrics != nil {
		storeOpts = append(storeOpts, store.WithObserver(a.Metrics))
	}
	a.Store = store.New(backend, storeOpts...)
	if err := a.Store.Init(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.QueueBackend == "redis" {
		a.Queue = queue.NewRedisQueue(a.Redis.Client, queueKey)
	} else {
		a.Queue = queue.NewInMemory(256)
	}

	repo := attendance.NewRepository(a.Store)
	svcOpts := []attendance.Option{
		attendance.WithClock(o.now),
		attendance.WithLocation(loc),
		attendance.WithClockOutLookup(attendance.ClockOutLookup(cfg.ClockOutLookup)),
		attendance.WithLogger(log),
		attendance.WithNotifier(queue.NewPublisher(a.Queue, a.invalidator())),
	}
	if a.Metrics != nil {
		svcOpts = append(svcOpts, attendance.WithObserver(a.Metrics))
	}
	a.Service = attendance.NewService(repo, svcOpts...)

	engineOpts := []report.EngineOption{report.WithEngineLogger(log), report.WithEngineClock(o.now, loc)}
	if a.Cache != nil {
		engineOpts = append(engineOpts, report.WithCache(a.Cache))
	}
	a.Engine = report.NewEngine(repo, engineOpts...)

	a.Operators = auth.NewOperators(a.Store)
	a.Signer = auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	return a, nil
}

// invalidator avoids handing a typed nil cache to the publisher.
func (a *App) invalidator() queue.Invalidator {
	if a.Cache == nil {
		return nil
	}
	return a.Cache
}

// SeedOperator creates the configured default operator on an empty users table.
func (a *App) SeedOperator(ctx context.Context) error {
	created, err := a.Operators.EnsureDefault(ctx, a.Config.DefaultOperator, a.Config.DefaultOperatorPassword)
	if err != nil {
		return err
	}
	if created {
		a.Log.WithField("username", a.Config.DefaultOperator).Info("default operator created")
	}
	return nil
}

// Close releases the store and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
