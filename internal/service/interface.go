package service

import (
	"context"

	"github.com/alexivanou/citysearch/internal/model"
)

// ServiceInterface defines the service interface for testing
type ServiceInterface interface {
	SuggestCities(ctx context.Context, req model.SuggestRequest) (*model.SuggestResponse, error)
	GetCityByID(ctx context.Context, id int) (*model.City, error)
	ListFavorites(ctx context.Context) (*model.FavoritesResponse, error)
	FavoriteStatus(ctx context.Context, id int) (*model.FavoriteStatusResponse, error)
	AddFavorite(ctx context.Context, id int) (*model.FavoriteStatusResponse, error)
	RemoveFavorite(ctx context.Context, id int) (*model.FavoriteStatusResponse, error)
	ToggleFavorite(ctx context.Context, id int) (*model.FavoriteStatusResponse, error)
	SubscribeFavorites(ctx context.Context, id string, fn func([]model.City)) error
	UnsubscribeFavorites(id string)
	NewLiveSearch() *LiveSearch
}
