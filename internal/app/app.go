// Package app assembles lupa's runtime from a Config: the model source, the
// result cache, metrics and the extraction service shared by the API
// server and the Kafka worker.
package app

import (
	"context"
	"time"

	"github.com/turtacn/lupa/internal/application/extraction"
	"github.com/turtacn/lupa/internal/config"
	"github.com/turtacn/lupa/internal/infrastructure/database/redis"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/internal/interfaces/http/handlers"
	"github.com/turtacn/lupa/pkg/errors"
)

// Version is overridden at build time.
var Version = "dev"

// App owns the long-lived dependencies of a lupa process.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Service   extraction.Service
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	checkers []handlers.HealthChecker
	closers  []func()
}

// NewLogger builds the process logger from cfg and installs it as the
// package default.
func NewLogger(cfg logging.LogConfig) (logging.Logger, error) {
	log, err := logging.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(log)
	return log, nil
}

// New connects the configured backends and loads the model. Everything
// opened before a failure is closed again.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	a := &App{Config: cfg, Logger: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var (
		opts []extraction.Option
		err  error
	)
	if cfg.Metrics.Enabled {
		a.Collector, err = prometheus.NewMetricsCollector(cfg.Metrics, log)
		if err != nil {
			return nil, err
		}
		a.Metrics = prometheus.NewAppMetrics(a.Collector)
		opts = append(opts, extraction.WithMetrics(a.Metrics))
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(&cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = rc.Close() })
		a.check("redis", rc.Ping)
		opts = append(opts, extraction.WithCache(redis.NewRedisCache(rc, log,
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Redis.TTL),
		)))
	}

	source, err := a.modelSource(ctx)
	if err != nil {
		return nil, err
	}

	a.Service = extraction.NewService(source, extraction.Config{
		UseAllBuiltins:   cfg.Engine.UseAllBuiltins,
		BatchConcurrency: cfg.Engine.BatchConcurrency,
		MaxTextLength:    cfg.Engine.MaxTextLength,
		CacheTTL:         cfg.Redis.TTL,
		WatchDebounce:    cfg.Engine.WatchDebounce,
	}, log, opts...)
	a.check("model", func(context.Context) error {
		if !a.Service.Ready() {
			return extraction.ErrNoModel
		}
		return nil
	})

	if err := a.Service.Reload(ctx); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *App) modelSource(ctx context.Context) (extraction.ModelSource, error) {
	cfg := a.Config
	switch cfg.Engine.ModelSource {
	case config.ModelSourcePostgres:
		repo, err := OpenRepository(ctx, cfg, a.Logger)
		if err != nil {
			return nil, err
		}
		a.onClose(repo.Close)
		a.check("postgres", repo.Ping)
		name := cfg.Engine.ModelName
		return extraction.NewSourceFunc("postgres:"+name, func(ctx context.Context) (*model.Model, error) {
			rec, err := repo.Latest(ctx, name)
			if err != nil {
				return nil, err
			}
			return rec.Model, nil
		}), nil

	case config.ModelSourceMinIO:
		store, err := OpenStore(ctx, cfg, a.Logger)
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		a.check("minio", store.Ping)
		key := cfg.MinIO.ObjectKey
		return extraction.NewSourceFunc("minio:"+key, func(ctx context.Context) (*model.Model, error) {
			return store.Get(ctx, key)
		}), nil

	case config.ModelSourceFile, "":
		return extraction.FileSource{Path: cfg.Engine.ModelPath}, nil
	}
	return nil, errors.New(errors.ErrCodeValidation, "unknown model source").WithDetail(cfg.Engine.ModelSource)
}

// Background keeps the model fresh until ctx is done: the file source is
// watched when engine.watch_model is set and any source is polled every
// engine.reload_interval.
func (a *App) Background(ctx context.Context) {
	cfg := a.Config.Engine
	if cfg.WatchModel && cfg.ModelSource == config.ModelSourceFile {
		go func() {
			if err := a.Service.Watch(ctx, cfg.ModelPath); err != nil {
				a.Logger.Error("model watcher stopped", logging.Err(err))
			}
		}()
	}
	if cfg.ReloadInterval > 0 {
		go a.poll(ctx, cfg.ReloadInterval)
	}
}

func (a *App) poll(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// Reload logs and keeps the previous model on failure.
			_ = a.Service.Reload(ctx)
		}
	}
}

// HealthCheckers lists one checker per connected backend plus the model.
func (a *App) HealthCheckers() []handlers.HealthChecker {
	return a.checkers
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) { a.closers = append(a.closers, fn) }

func (a *App) check(name string, fn func(ctx context.Context) error) {
	a.checkers = append(a.checkers, handlers.NewChecker(name, fn))
}
