package storage

import (
	"context"
	"fmt"

	"github.com/Varun5711/shortlink/internal/config"
	"github.com/Varun5711/shortlink/internal/database"
	"github.com/Varun5711/shortlink/internal/logger"
)

// Open builds the backend selected by cfg.Storage.Driver. For postgres the
// embedded migrations run first when cfg.Database.RunMigrations is set.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if cfg.Database.RunMigrations {
			if err := migrateUp(cfg.Database.PrimaryDSN, log); err != nil {
				return nil, err
			}
		}
		db, err := database.NewDBManager(ctx, database.Config{
			PrimaryDSN:      cfg.Database.PrimaryDSN,
			ReplicaDSNs:     cfg.Database.ReplicaDSNs,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("Using postgres storage (%d replicas)", len(cfg.Database.ReplicaDSNs))
		return NewPostgresStorage(db), nil

	case config.DriverSQLite:
		s, err := NewSQLiteStorage(ctx, cfg.Storage.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		log.Info("Using sqlite storage")
		return s, nil

	case config.DriverMemory:
		log.Warn("Using in-memory storage; records are lost on exit")
		return NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func migrateUp(dsn string, log *logger.Logger) error {
	m, err := database.NewMigrator(dsn, log)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
