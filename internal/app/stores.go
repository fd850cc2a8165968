package app

import (
	"context"

	"github.com/turtacn/lupa/internal/config"
	"github.com/turtacn/lupa/internal/infrastructure/database/postgres"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/infrastructure/storage/minio"
)

// Repository is an open postgres model repository.
type Repository struct {
	postgres.ModelRepository
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenRepository connects to postgres, applying migrations first when
// postgres.auto_migrate is set.
func OpenRepository(ctx context.Context, cfg *config.Config, log logging.Logger) (*Repository, error) {
	pool, err := postgres.NewPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(postgres.DSN(cfg.Postgres), log); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &Repository{
		ModelRepository: postgres.NewModelRepository(pool, log),
		Ping:            pool.Ping,
		Close:           pool.Close,
	}, nil
}

// Store is an open MinIO model store.
type Store struct {
	minio.ModelStore
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStore connects to MinIO and creates the bucket when missing.
func OpenStore(ctx context.Context, cfg *config.Config, log logging.Logger) (*Store, error) {
	mc, err := minio.NewClient(&cfg.MinIO, log)
	if err != nil {
		return nil, err
	}
	if err := mc.EnsureBucket(ctx); err != nil {
		_ = mc.Close()
		return nil, err
	}
	return &Store{
		ModelStore: minio.NewModelStore(mc, log),
		Ping:       mc.HealthCheck,
		Close:      func() { _ = mc.Close() },
	}, nil
}
