package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexivanou/citysearch/internal/api"
	"github.com/alexivanou/citysearch/internal/catalog"
	"github.com/alexivanou/citysearch/internal/config"
	"github.com/alexivanou/citysearch/internal/database"
	"github.com/alexivanou/citysearch/internal/favorites"
	"github.com/alexivanou/citysearch/internal/index"
	"github.com/alexivanou/citysearch/internal/repository"
	"github.com/alexivanou/citysearch/internal/service"
	"github.com/alexivanou/citysearch/internal/stats"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	start := time.Now()
	cities, err := catalog.Load(cfg.Search.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load city catalog", zap.String("path", cfg.Search.CatalogPath), zap.Error(err))
	}

	var raw index.Searcher
	if cfg.Search.Index == config.IndexTypeLinear {
		raw = index.NewLinear(cities)
	} else {
		raw = index.Build(cities)
	}
	searchStats := stats.NewSearchStats(string(cfg.Search.Index), len(cities), raw)
	logger.Info("City catalog indexed",
		zap.Int("cities", len(cities)),
		zap.String("index", string(cfg.Search.Index)),
		zap.Int("nodes", searchStats.Nodes),
		zap.Duration("elapsed", time.Since(start)),
	)

	db, err := database.Connect(context.Background(), cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Connected to database", zap.String("type", string(cfg.DB.Type)))

	if err := database.Migrate(db, cfg.DB, database.DefaultMigrationsDir); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	repos := repository.NewRepositories(db, cfg.DB.Type)
	store := favorites.New(repos.KV,
		favorites.WithKey(cfg.Favorites.Key),
		favorites.WithLogger(logger.Named("favorites")),
	)
	defer store.Close()

	metrics := api.NewMetrics()
	svc := service.NewService(index.NewSorted(raw), cities, store,
		service.WithPolicy(service.NewMinimumCharacterPolicy(cfg.Search.MinQueryLength)),
		service.WithServiceDebounce(cfg.Search.Debounce),
		service.WithCacheTTL(cfg.Search.CacheTTL),
		service.WithMetrics(metrics),
		service.WithServiceLogger(logger.Named("search")),
	)

	statsCollector := stats.NewCollector(db, cfg.DB, searchStats, store)
	limiter := api.NewLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
	router := api.NewRouter(svc, statsCollector, metrics, limiter, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked websocket connections
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
