package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/alexivanou/citysearch/internal/config"
	"github.com/alexivanou/citysearch/internal/database"
	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, or version")
		dir     = flag.String("dir", database.DefaultMigrationsDir, "Directory holding the sqlite/ and postgres/ migrations")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.DB.IsMemory() {
		logger.Warn("In-memory database is discarded on exit; cmd/app migrates it at startup")
	}

	db, err := database.Connect(context.Background(), cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	m, err := database.NewMigrate(db, cfg.DB, *dir)
	if err != nil {
		logger.Fatal("Failed to create migration instance", zap.Error(err))
	}
	defer func() {
		if err := database.Close(m, cfg.DB); err != nil {
			logger.Warn("Failed to close migration instance", zap.Error(err))
		}
	}()

	switch *command {
	case "up":
		logger.Info("Running migrations UP", zap.String("source", database.SourceURL(*dir, cfg.DB)))
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("Migration up failed", zap.Error(err))
		}
	case "down":
		logger.Info("Running migrations DOWN", zap.String("source", database.SourceURL(*dir, cfg.DB)))
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("Migration down failed", zap.Error(err))
		}
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				logger.Info("No migrations applied")
				return
			}
			logger.Fatal("Failed to get version", zap.Error(err))
		}
		logger.Info("Migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
	default:
		logger.Fatal("Unknown command", zap.String("command", *command))
	}

	logger.Info("Migration command completed successfully")
}
