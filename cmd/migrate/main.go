// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/config"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dbType = flag.String("db", "postgres", "Database type: postgres, clickhouse")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logging.InitGlobalLogger(logLevel, logging.FormatText)
	logger := logging.GetGlobalLogger()

	switch *dbType {
	case "postgres":
		if err := runPostgresMigrations(cfg, *action, logger); err != nil {
			logger.WithError(err).Fatal("Postgres migration failed")
		}
	case "clickhouse":
		if err := runClickHouseMigrations(cfg, *action, logger); err != nil {
			logger.WithError(err).Fatal("ClickHouse migration failed")
		}
	default:
		logger.WithField("db", *dbType).Fatal("Unknown database type")
	}
}

func runPostgresMigrations(cfg *config.Config, action string, logger *logging.Logger) error {
	migrator := storage.NewMigrator(&cfg.Database.Postgres, logger)

	switch action {
	case "up":
		return migrator.Up()

	case "down":
		return migrator.Down()

	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		logger.WithField("version", version).WithField("dirty", dirty).Info("Current Postgres migration version")
		return nil

	default:
		return fmt.Errorf("unknown action: %s", action)
	}
}

func runClickHouseMigrations(cfg *config.Config, action string, logger *logging.Logger) error {
	if action != "up" {
		return fmt.Errorf("ClickHouse migrations only support 'up' action")
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}()

	migrationsPath := cfg.Database.ClickHouse.MigrationsPath
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory not found: %s", migrationsPath)
	}

	return storage.RunClickHouseMigrations(db, migrationsPath, logger)
}
