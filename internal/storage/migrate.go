package storage

import (
	stderrors "errors"
	"fmt"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/config"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrator applies the versioned Postgres schema migrations
type Migrator struct {
	databaseURL    string
	migrationsPath string
	logger         *logging.Logger
}

// NewMigrator builds a migrator for the configured Postgres instance
func NewMigrator(cfg *config.PostgresConfig, logger *logging.Logger) *Migrator {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	return &Migrator{
		databaseURL:    databaseURL,
		migrationsPath: cfg.MigrationsPath,
		logger:         logger.WithField("component", "migrator"),
	}
}

func (m *Migrator) open() (*migrate.Migrate, error) {
	inst, err := migrate.New("file://"+m.migrationsPath, m.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return inst, nil
}

// Up applies all pending migrations and logs the resulting schema version
func (m *Migrator) Up() error {
	inst, err := m.open()
	if err != nil {
		return err
	}
	defer func() { _, _ = inst.Close() }()

	if err := inst.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("Schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err := inst.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	m.logger.WithField("version", version).Info("Migrations applied")

	return nil
}

// Down rolls back the most recent migration
func (m *Migrator) Down() error {
	inst, err := m.open()
	if err != nil {
		return err
	}
	defer func() { _, _ = inst.Close() }()

	if err := inst.Steps(-1); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("Nothing to roll back")
			return nil
		}
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	m.logger.Info("Rolled back one migration")

	return nil
}

// Version reports the current schema version. A fresh database reports
// version 0 and no error.
func (m *Migrator) Version() (uint, bool, error) {
	inst, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = inst.Close() }()

	version, dirty, err := inst.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}
