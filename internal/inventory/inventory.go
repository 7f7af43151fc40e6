// Package inventory defines the store catalog and the ledger contract that
// owns stock levels.
//
// Product names are unique ignoring case. Quantities only change through
// [Ledger.Decrement] and [Ledger.Increment], and a decrement that would take
// stock below zero fails instead of clamping.
package inventory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no store item has the requested name.
var ErrNotFound = errors.New("inventory: product not found")

// ErrInsufficientStock is returned by Decrement when the item holds fewer
// units than requested.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// StoreItem is one product line in the shared store.
type StoreItem struct {
	Product  string  `json:"product" yaml:"product"`
	Category string  `json:"category" yaml:"category"`
	Price    float64 `json:"price" yaml:"price"`
	Quantity int     `json:"quantity" yaml:"quantity"`
}

// Ledger is the authority on stock levels.
//
// Implementations must be safe for concurrent use. A Ledger obtained inside a
// transaction (see wishlist.TxRunner) sees and produces only that
// transaction's state until it commits.
type Ledger interface {
	// FindByName returns the item whose name equals name ignoring case.
	// Returns ErrNotFound when there is none.
	FindByName(ctx context.Context, name string) (StoreItem, error)

	// Decrement atomically lowers the item's quantity by n and returns the
	// updated item. It fails with ErrInsufficientStock when quantity < n and
	// with ErrNotFound when the item does not exist. n must be positive.
	Decrement(ctx context.Context, product string, n int) (StoreItem, error)

	// Increment atomically raises the item's quantity by n and returns the
	// updated item. Returns ErrNotFound when the item does not exist.
	Increment(ctx context.Context, product string, n int) (StoreItem, error)

	// List returns every store item ordered by product name.
	List(ctx context.Context) ([]StoreItem, error)

	// Count returns the number of store items.
	Count(ctx context.Context) (int, error)
}

// Seeder loads an initial catalog into an empty store.
type Seeder interface {
	// SeedIfEmpty inserts items when the store has no rows and returns the
	// number inserted. A non-empty store is left untouched and 0 is returned.
	SeedIfEmpty(ctx context.Context, items []StoreItem) (int, error)
}
