package recommend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/voicecart/internal/observe"
	"github.com/MrWong99/voicecart/internal/wishlist"
	"github.com/MrWong99/voicecart/pkg/provider/embeddings"
)

var (
	// ErrNoWishlist is returned for users that were never written.
	ErrNoWishlist = errors.New("recommend: no wishlist found")

	// ErrEmptyWishlist is returned for users whose wishlist has no entries.
	ErrEmptyWishlist = errors.New("recommend: wishlist empty")
)

// Recommendation is one suggested product.
type Recommendation struct {
	Product  string  `json:"product"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

// Wishlists is the read side the recommender needs.
type Wishlists interface {
	Wishlist(ctx context.Context, username string) ([]wishlist.Entry, error)
	UserExists(ctx context.Context, username string) (bool, error)
}

// Option configures a [Recommender].
type Option func(*Recommender)

// WithCandidates sets how many neighbours are fetched before exclusion.
// Default: 10.
func WithCandidates(k int) Option {
	return func(r *Recommender) { r.candidates = k }
}

// WithLimit sets the maximum number of recommendations returned. Default: 5.
func WithLimit(n int) Option {
	return func(r *Recommender) { r.limit = n }
}

// WithMetrics records embedding latency and provider counters.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recommender) { r.metrics = m }
}

// Recommender produces product suggestions for a user.
type Recommender struct {
	wishlists  Wishlists
	embedder   embeddings.Provider
	index      Index
	candidates int
	limit      int
	metrics    *observe.Metrics
}

// New returns a Recommender.
func New(w Wishlists, emb embeddings.Provider, idx Index, opts ...Option) *Recommender {
	r := &Recommender{
		wishlists:  w,
		embedder:   emb,
		index:      idx,
		candidates: 10,
		limit:      5,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Recommend returns up to the configured limit of products closest to
// username's wishlist, excluding products already on it. It returns
// ErrNoWishlist or ErrEmptyWishlist when there is nothing to base a
// suggestion on.
func (r *Recommender) Recommend(ctx context.Context, username string) ([]Recommendation, error) {
	exists, err := r.wishlists.UserExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}
	if !exists {
		return nil, ErrNoWishlist
	}
	entries, err := r.wishlists.Wishlist(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyWishlist
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Product
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, strings.Join(names, " "))
	if r.metrics != nil {
		r.metrics.ObserveProvider(ctx, r.metrics.EmbeddingDuration, r.embedder.ModelID(), "embeddings", time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("recommend: embed wishlist: %w", err)
	}

	hits, err := r.index.Nearest(ctx, vec, r.candidates)
	if err != nil {
		return nil, fmt.Errorf("recommend: search: %w", err)
	}

	out := make([]Recommendation, 0, r.limit)
	for _, h := range hits {
		if len(out) == r.limit {
			break
		}
		if slices.Contains(names, h.Item.Product) {
			continue
		}
		out = append(out, Recommendation{
			Product:  h.Item.Product,
			Category: h.Item.Category,
			Price:    h.Item.Price,
		})
	}
	return out, nil
}
