package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fitstreak/internal/config"
	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/outbox"
	"example.com/fitstreak/internal/persistence/memory"
	"example.com/fitstreak/internal/persistence/postgres"
	"example.com/fitstreak/internal/persistence/sqlite"
)

// Backend bundles the selected store with the resources it owns.
type Backend struct {
	Store domain.Store
	// Pool is set only for the Postgres driver.
	Pool *pgxpool.Pool
	// Outbox is nil for the memory driver, which records no events.
	Outbox outbox.Queue
	close  func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open selects the store named by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.AutoMigrate {
			applied, err := postgres.Migrate(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, err
			}
			if len(applied) > 0 {
				logger.Info("applied migrations", "versions", applied)
			}
		}
		return &Backend{Store: postgres.New(pool), Pool: pool, Outbox: outbox.NewPostgresQueue(pool), close: pool.Close}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: store, Outbox: store.OutboxQueue(), close: func() { store.Close() }}, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return &Backend{Store: memory.New()}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
