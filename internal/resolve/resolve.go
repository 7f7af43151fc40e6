// Package resolve picks the product a spoken name most likely refers to.
//
// Similarity is the normalised Indel ratio on lower-cased text:
//
//	100 * 2*LCS(a, b) / (len(a) + len(b))
//
// where LCS is the longest common subsequence in runes. The best candidate
// wins if it reaches the threshold (70 by default, inclusive). Among equal
// scores the earliest candidate wins, so results follow the caller's order.
package resolve

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// DefaultThreshold is the minimum ratio for a match.
const DefaultThreshold = 70.0

// Option is a functional option for configuring a [Resolver].
type Option func(*Resolver)

// WithThreshold sets the minimum ratio (0-100, inclusive) for a match.
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) { r.threshold = threshold }
}

// Resolver is a read-only matcher and safe for concurrent use.
type Resolver struct {
	threshold float64
}

// New returns a Resolver configured with opts.
func New(opts ...Option) *Resolver {
	r := &Resolver{threshold: DefaultThreshold}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Threshold returns the configured minimum ratio.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Ratio returns the case-insensitive similarity of a and b in [0, 100].
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	lcs := matchr.LongestCommonSubsequence(a, b)
	return 100 * float64(2*lcs) / float64(total)
}

// Best returns the index and score of the candidate most similar to query.
// ok is false when candidates is empty or no score reaches the threshold.
func (r *Resolver) Best(query string, candidates []string) (index int, score float64, ok bool) {
	index = -1
	for i, c := range candidates {
		if s := Ratio(query, c); index < 0 || s > score {
			index, score = i, s
		}
	}
	if index < 0 || score < r.threshold {
		return -1, score, false
	}
	return index, score, true
}

// Find is Best over arbitrary items, using name to get each item's text.
func Find[T any](r *Resolver, query string, items []T, name func(T) string) (T, bool) {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = name(it)
	}
	var zero T
	i, _, ok := r.Best(query, names)
	if !ok {
		return zero, false
	}
	return items[i], true
}
