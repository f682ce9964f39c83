package index

import (
	"context"

	"github.com/alexivanou/citysearch/internal/model"
)

// Searcher returns every city whose name starts with the given prefix
type Searcher interface {
	SearchPrefix(ctx context.Context, query string) ([]model.City, error)
}

// SearcherFunc adapts a function to the Searcher interface
type SearcherFunc func(ctx context.Context, query string) ([]model.City, error)

func (f SearcherFunc) SearchPrefix(ctx context.Context, query string) ([]model.City, error) {
	return f(ctx, query)
}
