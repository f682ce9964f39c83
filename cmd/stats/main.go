package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/alexivanou/citysearch/internal/catalog"
	"github.com/alexivanou/citysearch/internal/config"
	"github.com/alexivanou/citysearch/internal/database"
	"github.com/alexivanou/citysearch/internal/favorites"
	"github.com/alexivanou/citysearch/internal/index"
	"github.com/alexivanou/citysearch/internal/repository"
	"github.com/alexivanou/citysearch/internal/stats"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	cities, err := catalog.Load(cfg.Search.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load city catalog", zap.Error(err))
	}
	var idx index.Searcher = index.Build(cities)
	if cfg.Search.Index == config.IndexTypeLinear {
		idx = index.NewLinear(cities)
	}

	db, err := database.Connect(context.Background(), cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	if err := database.Migrate(db, cfg.DB, database.DefaultMigrationsDir); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	logger.Info("Collecting statistics...", zap.String("db_type", string(cfg.DB.Type)))

	repos := repository.NewRepositories(db, cfg.DB.Type)
	store := favorites.New(repos.KV, favorites.WithKey(cfg.Favorites.Key), favorites.WithLogger(logger))
	defer store.Close()

	searchStats := stats.NewSearchStats(string(cfg.Search.Index), len(cities), idx)
	collector := stats.NewCollector(db, cfg.DB, searchStats, store)

	statistics, err := collector.Collect(context.Background())
	if err != nil {
		logger.Fatal("Failed to collect statistics", zap.Error(err))
	}

	outputFormat := os.Getenv("OUTPUT_FORMAT")
	if outputFormat == "" {
		outputFormat = "json"
	}

	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(statistics); err != nil {
			logger.Fatal("Failed to encode statistics", zap.Error(err))
		}
	case "text", "human":
		printHumanReadable(statistics)
	default:
		logger.Fatal("Unknown output format", zap.String("format", outputFormat))
	}
}

func printHumanReadable(s *stats.Stats) {
	fmt.Println("=== CitySearch Statistics ===")
	fmt.Printf("Timestamp: %s\n", s.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Println()

	fmt.Println("--- Search Index ---")
	fmt.Printf("Index:           %s\n", s.Search.Index)
	fmt.Printf("Catalog Cities:  %d\n", s.Search.CatalogCities)
	fmt.Printf("Indexed Cities:  %d\n", s.Search.IndexedCities)
	if s.Search.Nodes > 0 {
		fmt.Printf("Trie Nodes:      %d\n", s.Search.Nodes)
	}
	fmt.Println()

	fmt.Println("--- Favorites ---")
	if s.Favorites.Error != "" {
		fmt.Printf("Error:           %s\n", s.Favorites.Error)
	} else {
		fmt.Printf("Count:           %d\n", s.Favorites.Count)
	}
	fmt.Println()

	fmt.Println("--- Memory Statistics ---")
	fmt.Printf("Allocated:        %s\n", formatBytes(s.Memory.Alloc))
	fmt.Printf("Heap In Use:      %s\n", formatBytes(s.Memory.HeapInuse))
	fmt.Println()

	fmt.Println("--- Database Statistics ---")
	fmt.Printf("Type:            %s\n", s.Database.Type)
	fmt.Printf("Size:            %s\n", formatBytes(uint64(s.Database.SizeBytes)))
	for _, ts := range s.Database.TableStats {
		fmt.Printf("  %-25s: %10d rows", ts.Name, ts.RowCount)
		if ts.SizeBytes > 0 {
			fmt.Printf(" (%s)", formatBytes(uint64(ts.SizeBytes)))
		}
		fmt.Println()
	}
	fmt.Println()

	fmt.Println("--- Runtime Statistics ---")
	fmt.Printf("Goroutines:      %d\n", s.Runtime.NumGoroutines)
	fmt.Printf("CPUs:            %d\n", s.Runtime.NumCPU)
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
