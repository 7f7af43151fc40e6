package wishlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voicecart/internal/cache"
	"github.com/MrWong99/voicecart/internal/inventory"
)

// StoreCacheKey is the cache key of the store listing.
const StoreCacheKey = "store:items"

// Views serves the read side: wishlists, the store listing and the counts
// reported by the health endpoint. The store listing is read through a
// cache that [Views.Observer] invalidates on every committed change.
type Views struct {
	store Store
	cache cache.Cache
	ttl   time.Duration
	gen   cache.Generation
}

// NewViews returns Views over store. A nil c disables caching.
func NewViews(store Store, c cache.Cache, ttl time.Duration) *Views {
	if c == nil {
		c = cache.Nop{}
	}
	return &Views{store: store, cache: c, ttl: ttl}
}

// Wishlist returns username's entries in insertion order. Unknown users get
// an empty slice.
func (v *Views) Wishlist(ctx context.Context, username string) ([]Entry, error) {
	entries, err := v.store.Users().Wishlist(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: wishlist %q: %w", ErrStorageUnavailable, username, err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// UserExists reports whether username has ever been written.
func (v *Views) UserExists(ctx context.Context, username string) (bool, error) {
	ok, err := v.store.Users().Exists(ctx, username)
	if err != nil {
		return false, fmt.Errorf("%w: user %q: %w", ErrStorageUnavailable, username, err)
	}
	return ok, nil
}

// ListStore returns every store item ordered by product name.
func (v *Views) ListStore(ctx context.Context) ([]inventory.StoreItem, error) {
	items, err := cache.GetOrLoad(ctx, v.cache, StoreCacheKey, v.ttl, v.store.Ledger().List, cache.Guard(&v.gen))
	if err != nil {
		return nil, fmt.Errorf("%w: list store: %w", ErrStorageUnavailable, err)
	}
	if items == nil {
		items = []inventory.StoreItem{}
	}
	return items, nil
}

// Counts returns the number of store items and users.
func (v *Views) Counts(ctx context.Context) (items, users int, err error) {
	if items, err = v.store.Ledger().Count(ctx); err != nil {
		return 0, 0, fmt.Errorf("%w: count store: %w", ErrStorageUnavailable, err)
	}
	if users, err = v.store.Users().Count(ctx); err != nil {
		return 0, 0, fmt.Errorf("%w: count users: %w", ErrStorageUnavailable, err)
	}
	return items, users, nil
}

// Invalidate drops the cached store listing. Listings loaded concurrently
// are not cached. The delete outlives cancellation of ctx, since the commit
// it follows already happened.
func (v *Views) Invalidate(ctx context.Context) {
	v.gen.Bump()
	if err := v.cache.Delete(context.WithoutCancel(ctx), StoreCacheKey); err != nil {
		slog.Warn("wishlist: cache invalidation failed", "key", StoreCacheKey, "err", err)
	}
}

// Observer returns a reconciler observer that invalidates the store listing
// after every committed change.
func (v *Views) Observer() Observer {
	return func(ctx context.Context, o Outcome) {
		if o.Committed {
			v.Invalidate(ctx)
		}
	}
}
