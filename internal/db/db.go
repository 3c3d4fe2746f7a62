package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"laundry-status-exporter/config"
	"laundry-status-exporter/internal/model"
)

const sqlitePrefix = "sqlite://"

// Init opens the database named by the DSN and runs migrations. A DSN of the
// form "sqlite://<path>" selects SQLite; anything else is handed to Postgres.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	slog.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates the tables the store needs.
func Migrate(db *gorm.DB) error {
	slog.Debug("running database migrations")
	if err := db.AutoMigrate(
		&model.Machine{},
		&model.MachineStatusRecord{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func dialector(dsn string) gorm.Dialector {
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		return sqlite.Open(path)
	}
	return postgres.Open(dsn)
}
