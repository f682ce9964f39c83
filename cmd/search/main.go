package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alexivanou/citysearch/internal/catalog"
	"github.com/alexivanou/citysearch/internal/config"
	"github.com/alexivanou/citysearch/internal/database"
	"github.com/alexivanou/citysearch/internal/favorites"
	"github.com/alexivanou/citysearch/internal/index"
	"github.com/alexivanou/citysearch/internal/model"
	"github.com/alexivanou/citysearch/internal/repository"
	"github.com/alexivanou/citysearch/internal/service"
	"go.uber.org/zap"
)

func main() {
	var (
		query     = flag.String("q", "", "City name prefix to search for")
		limit     = flag.Int("limit", 20, "Maximum number of matches to print")
		listFavs  = flag.Bool("favorites", false, "Print the favorite cities")
		toggleID  = flag.Int("toggle", 0, "Toggle the favorite status of the city with this id")
		resetFavs = flag.Bool("reset", false, "Delete all favorites")
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

	cities, err := catalog.Load(cfg.Search.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load city catalog", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.DB, database.DefaultMigrationsDir); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	repos := repository.NewRepositories(db, cfg.DB.Type)
	if *resetFavs {
		if err := repos.KV.Delete(ctx, cfg.Favorites.Key); err != nil {
			logger.Fatal("Failed to reset favorites", zap.Error(err))
		}
		fmt.Println("Favorites cleared")
	}

	store := favorites.New(repos.KV, favorites.WithKey(cfg.Favorites.Key), favorites.WithLogger(logger))
	defer store.Close()

	var raw index.Searcher = index.Build(cities)
	if cfg.Search.Index == config.IndexTypeLinear {
		raw = index.NewLinear(cities)
	}
	svc := service.NewService(index.NewSorted(raw), cities, store,
		service.WithPolicy(service.NewMinimumCharacterPolicy(cfg.Search.MinQueryLength)),
	)

	if *toggleID != 0 {
		resp, err := svc.ToggleFavorite(ctx, *toggleID)
		if err != nil {
			logger.Fatal("Failed to toggle favorite", zap.Int("id", *toggleID), zap.Error(err))
		}
		verb := "removed from"
		if resp.Favorite {
			verb = "added to"
		}
		fmt.Printf("%s, %s %s favorites\n", resp.City.Name, resp.City.Country, verb)
	}

	if *query != "" {
		start := time.Now()
		resp, err := svc.SuggestCities(ctx, model.SuggestRequest{Query: *query, Limit: *limit})
		switch {
		case errors.Is(err, service.ErrQueryTooShort):
			fmt.Printf("Type at least %d characters to search\n", cfg.Search.MinQueryLength)
		case err != nil:
			logger.Fatal("Search failed", zap.Error(err))
		case len(resp.Results) == 0:
			fmt.Printf("No cities found matching '%s'\n", resp.Query)
		default:
			printCities(resp.Results)
			fmt.Printf("\n%d match(es) in %s\n", len(resp.Results), time.Since(start).Round(time.Microsecond))
		}
	}

	if *listFavs {
		resp, err := svc.ListFavorites(ctx)
		if err != nil {
			logger.Fatal("Failed to list favorites", zap.Error(err))
		}
		if resp.Count == 0 {
			fmt.Println("No favorite cities")
			return
		}
		printCities(resp.Cities)
	}
}

func printCities(cities []model.City) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOUNTRY\tLAT\tLON")
	for _, c := range cities {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.4f\n", c.ID, c.Name, c.Country, c.Lat, c.Lon)
	}
	w.Flush()
}
