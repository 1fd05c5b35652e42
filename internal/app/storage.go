package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront-ids/internal/storage/postgres"
)

// runtimeDependencies содержит репозитории выбранного драйвера хранилища.
type runtimeDependencies struct {
	accounts        domain.AccountRepository
	orders          domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	store           *postgres.Store
}

func initRuntimeDependencies(ctx context.Context, cfg config.Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory, "":
		outbox := memory.NewOutboxRepository()
		accounts := memory.NewAccountRepository(outbox)
		logger.Warn("memory storage is single-process only; numbers are lost on restart")
		return &runtimeDependencies{
			accounts:        accounts,
			orders:          memory.NewOrderRepository(accounts, outbox),
			outboxRepo:      outbox,
			idempotencyRepo: memory.NewIdempotencyRepository(),
		}, nil
	case config.StorageDriverPostgres:
		return initPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func initPostgres(ctx context.Context, cfg config.Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required for postgres storage")
	}

	pool := postgres.DefaultPoolConfig()
	if cfg.Postgres.MaxOpenConns > 0 {
		pool.MaxOpenConns = cfg.Postgres.MaxOpenConns
	}
	if cfg.Postgres.MaxIdleConns > 0 {
		pool.MaxIdleConns = cfg.Postgres.MaxIdleConns
	}
	if cfg.Postgres.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.Postgres.ConnMaxLifetime
	}
	if cfg.Postgres.ConnMaxIdleTime > 0 {
		pool.ConnMaxIdleTime = cfg.Postgres.ConnMaxIdleTime
	}

	store, err := postgres.Open(ctx, cfg.Postgres.DSN, pool)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		state, err := store.MigrationStatus(ctx)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migration status: %w", err)
		}
		logger.WithFields(log.Fields{
			"version": state.Version,
			"applied": state.Applied,
		}).Info("postgres migrations applied")
	}

	return &runtimeDependencies{
		accounts:        postgres.NewAccountRepository(store),
		orders:          postgres.NewOrderRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		store:           store,
	}, nil
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.store == nil {
		return nil
	}
	return d.store.Close()
}
