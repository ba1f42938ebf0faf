package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Migrator struct {
	migrate *migrate.Migrate
	log     *logger.Logger
}

// NewMigrator reads the embedded migrations. databaseURL must be a
// postgres:// URL.
func NewMigrator(databaseURL string, log *logger.Logger) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	if log == nil {
		log = logger.Nop()
	}
	return &Migrator{migrate: m, log: log}, nil
}

func (m *Migrator) Up() error {
	version, dirty, err := m.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if dirty {
		m.log.Warn("Schema version %d is dirty, forcing before migrating", version)
		if err := m.migrate.Force(int(version)); err != nil {
			return fmt.Errorf("failed to clear dirty state: %w", err)
		}
	}

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.log.Info("Schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.migrate.Version()
	m.log.Info("Schema migrated to version %d", newVersion)
	return nil
}

func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}
