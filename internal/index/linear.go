package index

import (
	"context"
	"strings"

	"github.com/alexivanou/citysearch/internal/model"
)

// Linear scans the whole catalog on every lookup.
type Linear struct {
	cities []model.City
}

// NewLinear creates a searcher that scans every city on each query
func NewLinear(cities []model.City) *Linear {
	return &Linear{cities: cities}
}

func (l *Linear) SearchPrefix(_ context.Context, query string) ([]model.City, error) {
	results := []model.City{}
	if query == "" {
		return results, nil
	}

	prefix := strings.ToLower(query)
	for _, city := range l.cities {
		if strings.HasPrefix(strings.ToLower(city.Name), prefix) {
			results = append(results, city)
		}
	}
	return results, nil
}

// Len returns the number of searchable cities
func (l *Linear) Len() int {
	return len(l.cities)
}
