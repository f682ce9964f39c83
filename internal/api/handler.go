package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alexivanou/citysearch/internal/model"
	"github.com/alexivanou/citysearch/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler handles HTTP requests
type Handler struct {
	service service.ServiceInterface
	logger  *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(service service.ServiceInterface, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// SuggestCities handles GET /api/v1/suggest
func (h *Handler) SuggestCities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query parameter 'q' is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
	}

	response, err := h.service.SuggestCities(r.Context(), model.SuggestRequest{
		Query: query,
		Limit: limit,
	})
	if err != nil {
		h.writeError(w, "Error suggesting cities", err)
		return
	}

	h.writeJSON(w, http.StatusOK, response)
}

// GetCity handles GET /api/v1/city/{id}
func (h *Handler) GetCity(w http.ResponseWriter, r *http.Request) {
	id, ok := cityID(w, r)
	if !ok {
		return
	}

	city, err := h.service.GetCityByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "Error getting city", err)
		return
	}

	h.writeJSON(w, http.StatusOK, city)
}

// ListFavorites handles GET /api/v1/favorites
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.ListFavorites(r.Context())
	if err != nil {
		h.writeError(w, "Error listing favorites", err)
		return
	}

	h.writeJSON(w, http.StatusOK, response)
}

// FavoriteStatus handles GET /api/v1/favorites/{id}
func (h *Handler) FavoriteStatus(w http.ResponseWriter, r *http.Request) {
	h.favoriteAction(w, r, "Error checking favorite", h.service.FavoriteStatus)
}

// AddFavorite handles PUT /api/v1/favorites/{id}
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	h.favoriteAction(w, r, "Error adding favorite", h.service.AddFavorite)
}

// RemoveFavorite handles DELETE /api/v1/favorites/{id}
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	h.favoriteAction(w, r, "Error removing favorite", h.service.RemoveFavorite)
}

// ToggleFavorite handles POST /api/v1/favorites/{id}/toggle
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.favoriteAction(w, r, "Error toggling favorite", h.service.ToggleFavorite)
}

func (h *Handler) favoriteAction(
	w http.ResponseWriter,
	r *http.Request,
	msg string,
	action func(ctx context.Context, id int) (*model.FavoriteStatusResponse, error),
) {
	id, ok := cityID(w, r)
	if !ok {
		return
	}

	response, err := action(r.Context(), id)
	if err != nil {
		h.writeError(w, msg, err)
		return
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func cityID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid city id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrQueryTooShort):
		http.Error(w, "query too short", http.StatusBadRequest)
	case errors.Is(err, service.ErrCityNotFound):
		http.Error(w, "city not found", http.StatusNotFound)
	default:
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Error encoding response", zap.Error(err))
	}
}
