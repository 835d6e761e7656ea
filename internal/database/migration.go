// internal/database/migration.go
package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"v850-service/internal/config"
)

// Migrator applies the session schema from MigrationsPath.
type Migrator struct {
	db     *DB
	logger *zap.Logger
	config *config.DatabaseConfig
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *DB, logger *zap.Logger, config *config.DatabaseConfig) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger.With(zap.String("component", "migrator")),
		config: config,
	}
}

// Up brings the schema to the newest migration and logs the version it
// ended on. A dirty schema is reported, not repaired.
func (m *Migrator) Up() error {
	return m.with(func(mg *migrate.Migrate) error {
		if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}

		version, dirty, err := mg.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty", version)
		}
		m.logger.Info("Session schema up to date", zap.Uint("version", version))
		return nil
	})
}

// with runs fn on a dedicated connection so closing the migrator leaves
// the pool open.
func (m *Migrator) with(fn func(*migrate.Migrate) error) error {
	ctx := context.Background()
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	sourceURL, err := SourceURL(m.config.MigrationsPath)
	if err != nil {
		driver.Close()
		return err
	}

	mg, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer mg.Close()
	return fn(mg)
}

// SourceURL turns the configured migrations path into an absolute file://
// URL. Other schemes pass through.
func SourceURL(path string) (string, error) {
	if path == "" {
		path = "migrations"
	}
	if strings.Contains(path, "://") && !strings.HasPrefix(path, "file://") {
		return path, nil
	}

	abs, err := filepath.Abs(strings.TrimPrefix(path, "file://"))
	if err != nil {
		return "", fmt.Errorf("failed to get migrations path: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
