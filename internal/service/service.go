package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alexivanou/citysearch/internal/catalog"
	"github.com/alexivanou/citysearch/internal/index"
	"github.com/alexivanou/citysearch/internal/model"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Metric sources
const (
	SourceLive    = "live"
	SourceSuggest = "suggest"
)

var (
	ErrQueryTooShort = errors.New("query too short")
	ErrCityNotFound  = errors.New("city not found")
)

// Metrics receives search and favorites events
type Metrics interface {
	ObserveSearch(source, outcome string, elapsed time.Duration)
	ObserveFavoriteChange(op string, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSearch(string, string, time.Duration) {}
func (nopMetrics) ObserveFavoriteChange(string, error)         {}

// FavoritesStore is the favorites persistence the service relies on
type FavoritesStore interface {
	IsFavorite(ctx context.Context, city model.City) (bool, error)
	Toggle(ctx context.Context, city model.City) (bool, error)
	Add(ctx context.Context, city model.City) error
	Remove(ctx context.Context, city model.City) error
	List(ctx context.Context) ([]model.City, error)
	Subscribe(ctx context.Context, id string, fn func([]model.City)) error
	Unsubscribe(id string)
}

// Option configures a Service
type Option func(*Service)

// WithPolicy sets the gate applied to suggest and live queries
func WithPolicy(p SearchPolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithServiceDebounce sets the debounce of live searches created by the service
func WithServiceDebounce(d time.Duration) Option {
	return func(s *Service) {
		s.debounce = d
	}
}

// WithCacheTTL sets how long suggest results are cached
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache.New(ttl, 2*ttl)
	}
}

// WithMetrics reports searches and favorites changes to m
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service ties the catalog, the ordered search and the favorites together
type Service struct {
	searcher  index.Searcher
	cities    map[int]model.City
	favorites FavoritesStore
	policy    SearchPolicy
	debounce  time.Duration
	cache     *cache.Cache
	metrics   Metrics
	logger    *zap.Logger
}

// NewService creates a new service instance. searcher should already impose
// the result order (see index.Sorted).
func NewService(searcher index.Searcher, cities []model.City, favorites FavoritesStore, opts ...Option) *Service {
	s := &Service{
		searcher:  searcher,
		cities:    catalog.CreateCityIDMap(cities),
		favorites: favorites,
		policy:    NewMinimumCharacterPolicy(DefaultMinQueryLength),
		debounce:  DefaultDebounce,
		cache:     cache.New(5*time.Minute, 10*time.Minute),
		metrics:   nopMetrics{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SuggestCities returns the ordered prefix matches for a query
func (s *Service) SuggestCities(ctx context.Context, req model.SuggestRequest) (*model.SuggestResponse, error) {
	query := strings.TrimSpace(req.Query)
	if !s.policy.ShouldSearch(query) {
		return nil, fmt.Errorf("%w: %q", ErrQueryTooShort, req.Query)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	start := time.Now()
	results, err := s.search(ctx, query)
	if err != nil {
		s.metrics.ObserveSearch(SourceSuggest, OutcomeFailed, time.Since(start))
		return nil, fmt.Errorf("failed to search cities: %w", err)
	}

	outcome := OutcomeLoaded
	if len(results) == 0 {
		outcome = OutcomeEmpty
	}
	s.metrics.ObserveSearch(SourceSuggest, outcome, time.Since(start))

	if len(results) > limit {
		results = results[:limit]
	}
	return &model.SuggestResponse{Query: query, Results: results}, nil
}

func (s *Service) search(ctx context.Context, query string) ([]model.City, error) {
	key := strings.ToLower(query)
	// Callers own the returned slice; cached results are never handed out directly.
	if cached, found := s.cache.Get(key); found {
		return slices.Clone(cached.([]model.City)), nil
	}

	results, err := s.searcher.SearchPrefix(ctx, query)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, slices.Clone(results), cache.DefaultExpiration)
	return results, nil
}

// GetCityByID looks a city up in the catalog
func (s *Service) GetCityByID(_ context.Context, id int) (*model.City, error) {
	city, ok := s.cities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCityNotFound, id)
	}
	return &city, nil
}

// CatalogSize returns the number of cities in the catalog
func (s *Service) CatalogSize() int {
	return len(s.cities)
}

// NewLiveSearch creates a live search over the same ordered index
func (s *Service) NewLiveSearch() *LiveSearch {
	return NewLiveSearch(s.searcher, s.policy,
		WithDebounce(s.debounce),
		WithLogger(s.logger),
		WithLiveMetrics(s.metrics),
	)
}

// ListFavorites returns the favorite cities in the order they were added
func (s *Service) ListFavorites(ctx context.Context) (*model.FavoritesResponse, error) {
	cities, err := s.favorites.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return &model.FavoritesResponse{Cities: cities, Count: len(cities)}, nil
}

// FavoriteStatus reports whether a city is a favorite
func (s *Service) FavoriteStatus(ctx context.Context, id int) (*model.FavoriteStatusResponse, error) {
	city, err := s.GetCityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fav, err := s.favorites.IsFavorite(ctx, *city)
	if err != nil {
		return nil, fmt.Errorf("failed to check favorite: %w", err)
	}
	return &model.FavoriteStatusResponse{City: *city, Favorite: fav}, nil
}

// AddFavorite adds a catalog city to the favorites
func (s *Service) AddFavorite(ctx context.Context, id int) (*model.FavoriteStatusResponse, error) {
	city, err := s.GetCityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.favorites.Add(ctx, *city)
	s.metrics.ObserveFavoriteChange("add", err)
	if err != nil {
		return nil, fmt.Errorf("failed to add favorite: %w", err)
	}
	return &model.FavoriteStatusResponse{City: *city, Favorite: true}, nil
}

// RemoveFavorite removes a catalog city from the favorites
func (s *Service) RemoveFavorite(ctx context.Context, id int) (*model.FavoriteStatusResponse, error) {
	city, err := s.GetCityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.favorites.Remove(ctx, *city)
	s.metrics.ObserveFavoriteChange("remove", err)
	if err != nil {
		return nil, fmt.Errorf("failed to remove favorite: %w", err)
	}
	return &model.FavoriteStatusResponse{City: *city, Favorite: false}, nil
}

// ToggleFavorite flips the membership of a catalog city
func (s *Service) ToggleFavorite(ctx context.Context, id int) (*model.FavoriteStatusResponse, error) {
	city, err := s.GetCityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fav, err := s.favorites.Toggle(ctx, *city)
	s.metrics.ObserveFavoriteChange("toggle", err)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return &model.FavoriteStatusResponse{City: *city, Favorite: fav}, nil
}

// SubscribeFavorites registers fn for favorites changes
func (s *Service) SubscribeFavorites(ctx context.Context, id string, fn func([]model.City)) error {
	return s.favorites.Subscribe(ctx, id, fn)
}

// UnsubscribeFavorites removes a favorites observer
func (s *Service) UnsubscribeFavorites(id string) {
	s.favorites.Unsubscribe(id)
}
