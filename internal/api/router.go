package api

import (
	"github.com/alexivanou/citysearch/internal/service"
	"github.com/alexivanou/citysearch/internal/stats"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewRouter creates a new HTTP router. statsCollector, metrics and limiter
// are optional.
func NewRouter(
	service service.ServiceInterface,
	statsCollector *stats.Collector,
	metrics *Metrics,
	limiter *rate.Limiter,
	logger *zap.Logger,
) *mux.Router {
	handler := NewHandler(service, logger)
	liveHandler := NewLiveHandler(service, metrics, logger)

	router := mux.NewRouter()
	if metrics != nil {
		router.Use(metrics.Middleware)
		router.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(RateLimit(limiter))
	v1.HandleFunc("/suggest", handler.SuggestCities).Methods("GET")
	v1.HandleFunc("/city/{id}", handler.GetCity).Methods("GET")
	v1.HandleFunc("/live", liveHandler.Serve).Methods("GET")

	favorites := v1.PathPrefix("/favorites").Subrouter()
	favorites.HandleFunc("", handler.ListFavorites).Methods("GET")
	favorites.HandleFunc("/{id}", handler.FavoriteStatus).Methods("GET")
	favorites.HandleFunc("/{id}", handler.AddFavorite).Methods("PUT")
	favorites.HandleFunc("/{id}", handler.RemoveFavorite).Methods("DELETE")
	favorites.HandleFunc("/{id}/toggle", handler.ToggleFavorite).Methods("POST")

	if statsCollector != nil {
		v1.HandleFunc("/stats", NewStatsHandler(statsCollector, logger).GetStats).Methods("GET")
	}

	return router
}
