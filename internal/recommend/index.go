// Package recommend suggests store products that are semantically close to
// what a user already has on their wishlist.
//
// Product names are embedded once into an [Index]. A recommendation embeds
// the user's wishlist as one space-joined text, asks the index for the
// nearest candidates by L2 distance, drops products already on the wishlist
// and returns the closest few.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voicecart/internal/inventory"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// vectors already in the index.
var ErrDimensionMismatch = errors.New("recommend: vector dimension mismatch")

// Neighbor is one index hit.
type Neighbor struct {
	Item inventory.StoreItem

	// Distance is the squared L2 distance to the query vector.
	Distance float64
}

// Index answers nearest-neighbour queries over embedded products.
type Index interface {
	// Nearest returns up to k products ordered by ascending distance to vec.
	Nearest(ctx context.Context, vec []float32, k int) ([]Neighbor, error)
}

// WritableIndex is an Index that can be populated by [Sync].
type WritableIndex interface {
	Index

	// Upsert stores vec as the embedding of item, replacing any previous one.
	Upsert(ctx context.Context, item inventory.StoreItem, vec []float32) error

	// Products returns the names of all indexed products.
	Products(ctx context.Context) ([]string, error)
}

// FlatIndex is an exact in-memory index that scans every vector on each
// query. It is adequate for catalogs of a few thousand products.
type FlatIndex struct {
	mu      sync.RWMutex
	dims    int
	entries []flatEntry
	byName  map[string]int
}

type flatEntry struct {
	item inventory.StoreItem
	vec  []float32
}

var _ WritableIndex = (*FlatIndex)(nil)

// NewFlatIndex returns an empty FlatIndex. Its dimension is fixed by the
// first vector inserted.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{byName: make(map[string]int)}
}

// Upsert implements WritableIndex.
func (x *FlatIndex) Upsert(_ context.Context, item inventory.StoreItem, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("recommend: upsert %q: empty vector", item.Product)
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dims == 0 {
		x.dims = len(vec)
	} else if len(vec) != x.dims {
		return fmt.Errorf("%w: upsert %q: got %d, want %d", ErrDimensionMismatch, item.Product, len(vec), x.dims)
	}

	e := flatEntry{item: item, vec: slices.Clone(vec)}
	if i, ok := x.byName[item.Product]; ok {
		x.entries[i] = e
		return nil
	}
	x.byName[item.Product] = len(x.entries)
	x.entries = append(x.entries, e)
	return nil
}

// Products implements WritableIndex.
func (x *FlatIndex) Products(context.Context) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, len(x.entries))
	for i, e := range x.entries {
		out[i] = e.item.Product
	}
	return out, nil
}

// Len returns the number of indexed products.
func (x *FlatIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Nearest implements Index. Ties keep insertion order.
func (x *FlatIndex) Nearest(_ context.Context, vec []float32, k int) ([]Neighbor, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || len(x.entries) == 0 {
		return []Neighbor{}, nil
	}
	if len(vec) != x.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vec), x.dims)
	}

	out := make([]Neighbor, len(x.entries))
	for i, e := range x.entries {
		out[i] = Neighbor{Item: e.item, Distance: squaredL2(vec, e.vec)}
	}
	slices.SortStableFunc(out, func(a, b Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
