package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexivanou/citysearch/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver for database/sql
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultMigrationsDir is where cmd/app and cmd/migrate look for migrations
const DefaultMigrationsDir = "migrations"

// Connect creates a database connection based on configuration using sqlx
func Connect(ctx context.Context, cfg config.DBConfig) (*sqlx.DB, error) {
	driverName := "pgx"
	if cfg.IsSQLite() {
		driverName = "sqlite3"
	}

	db, err := sqlx.ConnectContext(ctx, driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.IsSQLite() {
		// A shared in-memory database lives as long as one connection does,
		// and SQLite serializes writers anyway.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	return db, nil
}

// SourceURL returns the golang-migrate source for the configured database type
func SourceURL(dir string, cfg config.DBConfig) string {
	sub := "postgres"
	if cfg.IsSQLite() {
		sub = "sqlite"
	}
	return "file://" + strings.TrimSuffix(dir, "/") + "/" + sub
}

// NewMigrate builds a migrate instance for db. SQLite goes through the open
// connection so that in-memory databases are migrated in place.
func NewMigrate(db *sqlx.DB, cfg config.DBConfig, dir string) (*migrate.Migrate, error) {
	sourceURL := SourceURL(dir, cfg)

	if cfg.IsSQLite() {
		driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
		if err != nil {
			return nil, fmt.Errorf("could not create sqlite driver: %w", err)
		}
		m, err := migrate.NewWithDatabaseInstance(sourceURL, "sqlite3", driver)
		if err != nil {
			return nil, fmt.Errorf("could not create migrate instance: %w", err)
		}
		return m, nil
	}

	m, err := migrate.New(sourceURL, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}
	return m, nil
}

// OwnsConnection reports whether a migrate instance from NewMigrate opened its
// own database connection and must be closed by the caller. SQLite instances
// wrap db, and closing them would close db.
func OwnsConnection(cfg config.DBConfig) bool {
	return !cfg.IsSQLite()
}

// Close releases the connections a migrate instance opened on its own
func Close(m *migrate.Migrate, cfg config.DBConfig) error {
	if !OwnsConnection(cfg) {
		return nil
	}
	srcErr, dbErr := m.Close()
	return errors.Join(srcErr, dbErr)
}

// Migrate applies all pending up migrations
func Migrate(db *sqlx.DB, cfg config.DBConfig, dir string) (err error) {
	m, err := NewMigrate(db, cfg, dir)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := Close(m, cfg); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close migrate instance: %w", closeErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
