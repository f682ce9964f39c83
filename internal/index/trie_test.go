package index

import (
	"context"
	"strings"
	"testing"

	"github.com/alexivanou/citysearch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() []model.City {
	return []model.City{
		{ID: 1, Name: "New York", Country: "US"},
		{ID: 2, Name: "New Orleans", Country: "US"},
		{ID: 3, Name: "Buenos Aires", Country: "AR"},
		{ID: 4, Name: "Budapest", Country: "HU"},
		{ID: 5, Name: "Brasília", Country: "BR"},
		{ID: 6, Name: "São Paulo", Country: "BR"},
		{ID: 7, Name: "Santiago", Country: "CL"},
		{ID: 8, Name: "Santiago", Country: "ES"},
		{ID: 9, Name: "Москва", Country: "RU"},
		{ID: 10, Name: "München", Country: "DE"},
		{ID: 11, Name: "newark", Country: "US"},
	}
}

func names(cities []model.City) []string {
	out := make([]string, len(cities))
	for i, c := range cities {
		out[i] = c.Name
	}
	return out
}

func ids(cities []model.City) []int {
	out := make([]int, len(cities))
	for i, c := range cities {
		out[i] = c.ID
	}
	return out
}

func TestTrie_SearchPrefix(t *testing.T) {
	trie := Build(testCatalog())
	ctx := context.Background()

	tests := []struct {
		name     string
		query    string
		expected []int
	}{
		{"empty query matches nothing", "", []int{}},
		{"insertion order kept", "new", []int{1, 2, 11}},
		{"single letter", "b", []int{3, 4, 5}},
		{"full name", "budapest", []int{4}},
		{"longer than any name", "budapestx", []int{}},
		{"no match", "xyz", []int{}},
		{"space is a character", "new ", []int{1, 2}},
		{"duplicates returned", "santiago", []int{7, 8}},
		{"multi-byte prefix", "sã", []int{6}},
		{"ascii does not match accented rune", "sa", []int{7, 8}},
		{"cyrillic", "мос", []int{9}},
		{"cyrillic upper case", "МОС", []int{9}},
		{"umlaut", "mün", []int{10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := trie.SearchPrefix(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(results))
		})
	}
}

func TestTrie_EmptyCatalog(t *testing.T) {
	trie := Build(nil)
	results, err := trie.SearchPrefix(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, trie.Len())
	assert.Equal(t, 1, trie.Nodes())
}

func TestTrie_CaseInvariance(t *testing.T) {
	trie := Build(testCatalog())
	ctx := context.Background()

	for _, q := range []string{"new", "Bu", "san", "münch", "new y"} {
		lower, err := trie.SearchPrefix(ctx, strings.ToLower(q))
		require.NoError(t, err)
		upper, err := trie.SearchPrefix(ctx, strings.ToUpper(q))
		require.NoError(t, err)
		raw, err := trie.SearchPrefix(ctx, q)
		require.NoError(t, err)

		assert.Equal(t, ids(raw), ids(lower), q)
		assert.Equal(t, ids(raw), ids(upper), q)
	}
}

func TestTrie_MatchesLinearScan(t *testing.T) {
	catalog := testCatalog()
	trie := Build(catalog)
	linear := NewLinear(catalog)
	ctx := context.Background()

	// Every prefix of every name, plus some misses.
	queries := []string{"", "q", "zz", "new yorkers"}
	for _, c := range catalog {
		runes := []rune(c.Name)
		for i := 1; i <= len(runes); i++ {
			queries = append(queries, string(runes[:i]))
		}
	}

	for _, q := range queries {
		want, err := linear.SearchPrefix(ctx, q)
		require.NoError(t, err)
		got, err := trie.SearchPrefix(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, ids(want), ids(got), "query %q", q)
	}
}

func TestTrie_ResultsAreCopies(t *testing.T) {
	trie := Build(testCatalog())
	ctx := context.Background()

	first, err := trie.SearchPrefix(ctx, "new")
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := trie.SearchPrefix(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "New York", second[0].Name)
}

func TestTrie_Stats(t *testing.T) {
	trie := Build([]model.City{
		{ID: 1, Name: "ab"},
		{ID: 2, Name: "ac"},
	})
	assert.Equal(t, 2, trie.Len())
	// root, a, b, c
	assert.Equal(t, 4, trie.Nodes())
}
