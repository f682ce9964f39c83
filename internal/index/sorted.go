package index

import (
	"context"
	"sort"

	"github.com/alexivanou/citysearch/internal/model"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Sorted orders the results of another Searcher by name, then country,
// using a case-insensitive collation. Equal keys keep the order of Next.
type Sorted struct {
	Next Searcher
	Tag  language.Tag
}

// NewSorted wraps next so that its matches come back ordered by name, then country
func NewSorted(next Searcher) *Sorted {
	return &Sorted{Next: next, Tag: language.Und}
}

func (s *Sorted) SearchPrefix(ctx context.Context, query string) ([]model.City, error) {
	results, err := s.Next.SearchPrefix(ctx, query)
	if err != nil {
		return nil, err
	}

	// Collators keep scratch buffers and must not be shared between goroutines.
	col := collate.New(s.Tag, collate.IgnoreCase)
	sort.SliceStable(results, func(i, j int) bool {
		return Less(col, results[i], results[j])
	})
	return results, nil
}

// Less compares by name and falls back to country on a tie
func Less(col *collate.Collator, a, b model.City) bool {
	if c := col.CompareString(a.Name, b.Name); c != 0 {
		return c < 0
	}
	return col.CompareString(a.Country, b.Country) < 0
}
