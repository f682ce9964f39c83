package service

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinQueryLength is the number of characters a query needs before it is searched
const DefaultMinQueryLength = 3

// SearchPolicy decides whether a query is worth searching for
type SearchPolicy interface {
	ShouldSearch(query string) bool
}

// MinimumCharacterPolicy accepts queries with at least Min characters
// once surrounding whitespace is removed. Characters are counted as runes.
type MinimumCharacterPolicy struct {
	Min int
}

// NewMinimumCharacterPolicy creates a policy requiring at least min characters
func NewMinimumCharacterPolicy(min int) MinimumCharacterPolicy {
	return MinimumCharacterPolicy{Min: min}
}

// ShouldSearch reports whether the trimmed query is long enough
func (p MinimumCharacterPolicy) ShouldSearch(query string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(query)) >= p.Min
}
