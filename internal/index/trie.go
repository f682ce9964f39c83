package index

import (
	"context"
	"strings"

	"github.com/alexivanou/citysearch/internal/model"
)

type node struct {
	children map[rune]*node
	cities   []model.City
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Trie is an immutable prefix tree over city names.
// Every node holds all cities whose lowercased name passes through it,
// so a lookup costs one step per query rune and never scans the catalog.
type Trie struct {
	root  *node
	size  int
	nodes int
}

// Build inserts every city once. The trie is read-only afterwards and
// safe for concurrent use.
func Build(cities []model.City) *Trie {
	t := &Trie{root: newNode(), nodes: 1}
	for _, city := range cities {
		t.insert(city)
	}
	return t
}

func (t *Trie) insert(city model.City) {
	current := t.root
	for _, r := range strings.ToLower(city.Name) {
		next, ok := current.children[r]
		if !ok {
			next = newNode()
			current.children[r] = next
			t.nodes++
		}
		current = next
		current.cities = append(current.cities, city)
	}
	t.size++
}

// SearchPrefix returns the cities sharing the prefix in insertion order.
// An empty query matches nothing.
func (t *Trie) SearchPrefix(_ context.Context, query string) ([]model.City, error) {
	if query == "" {
		return []model.City{}, nil
	}

	current := t.root
	for _, r := range strings.ToLower(query) {
		next, ok := current.children[r]
		if !ok {
			return []model.City{}, nil
		}
		current = next
	}

	out := make([]model.City, len(current.cities))
	copy(out, current.cities)
	return out, nil
}

// Len returns the number of indexed cities
func (t *Trie) Len() int {
	return t.size
}

// Nodes returns the number of trie nodes including the root
func (t *Trie) Nodes() int {
	return t.nodes
}
