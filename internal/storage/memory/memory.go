// Package memory is an in-process storage backend for voicecart.
//
// All state sits behind one mutex. A transaction works on a private copy of
// the state and swaps it in on success, so a failed or cancelled transaction
// leaves no trace. It suits tests and single-instance deployments; nothing
// survives a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/wishlist"
)

// Compile-time interface assertions.
var (
	_ wishlist.Store   = (*Store)(nil)
	_ inventory.Seeder = (*Store)(nil)
	_ inventory.Ledger = ledger{}
	_ wishlist.Users   = users{}
)

type userRecord struct {
	wishlist []wishlist.Entry
	history  []wishlist.HistoryRecord
}

type state struct {
	items map[string]inventory.StoreItem // keyed by lower-cased product
	users map[string]*userRecord
}

func (s *state) clone() *state {
	c := &state{
		items: make(map[string]inventory.StoreItem, len(s.items)),
		users: make(map[string]*userRecord, len(s.users)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, u := range s.users {
		c.users[k] = &userRecord{
			wishlist: slices.Clone(u.wishlist),
			history:  slices.Clone(u.history),
		}
	}
	return c
}

// Store is the in-memory backend. The zero value is not usable; call [New].
type Store struct {
	mu    sync.Mutex
	state *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: &state{
		items: make(map[string]inventory.StoreItem),
		users: make(map[string]*userRecord),
	}}
}

// RunInTx runs fn against a private copy of the store and commits it when
// fn returns nil and ctx is still live. Transactions are serialised.
func (s *Store) RunInTx(ctx context.Context, fn wishlist.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, ledger{st: work}, users{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: commit: %w", err)
	}
	s.state = work
	return nil
}

// Ledger returns a ledger whose operations each run atomically on the
// committed state.
func (s *Store) Ledger() inventory.Ledger { return ledger{store: s} }

// Users returns a user store whose operations each run atomically on the
// committed state.
func (s *Store) Users() wishlist.Users { return users{store: s} }

// SeedIfEmpty implements inventory.Seeder.
func (s *Store) SeedIfEmpty(ctx context.Context, items []inventory.StoreItem) (int, error) {
	if err := inventory.ValidateCatalog(items); err != nil {
		return 0, fmt.Errorf("memory: seed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.items) > 0 {
		return 0, nil
	}
	for _, it := range items {
		s.state.items[key(it.Product)] = it
	}
	return len(items), nil
}

// Close is a no-op so Store can be used where a closable backend is
// expected.
func (s *Store) Close() {}

func key(product string) string { return strings.ToLower(strings.TrimSpace(product)) }

// access runs fn on the transaction's state, or on the committed state under
// the store lock when not inside a transaction.
func access(store *Store, st *state, fn func(*state) error) error {
	if st != nil {
		return fn(st)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return fn(store.state)
}

type ledger struct {
	store *Store
	st    *state
}

func (l ledger) FindByName(ctx context.Context, name string) (inventory.StoreItem, error) {
	var out inventory.StoreItem
	err := access(l.store, l.st, func(s *state) error {
		it, ok := s.items[key(name)]
		if !ok {
			return inventory.ErrNotFound
		}
		out = it
		return nil
	})
	return out, err
}

func (l ledger) Decrement(ctx context.Context, product string, n int) (inventory.StoreItem, error) {
	if n <= 0 {
		return inventory.StoreItem{}, fmt.Errorf("memory: decrement %q: quantity must be positive, got %d", product, n)
	}
	var out inventory.StoreItem
	err := access(l.store, l.st, func(s *state) error {
		k := key(product)
		it, ok := s.items[k]
		if !ok {
			return inventory.ErrNotFound
		}
		if it.Quantity < n {
			return inventory.ErrInsufficientStock
		}
		it.Quantity -= n
		s.items[k] = it
		out = it
		return nil
	})
	return out, err
}

func (l ledger) Increment(ctx context.Context, product string, n int) (inventory.StoreItem, error) {
	if n < 0 {
		return inventory.StoreItem{}, fmt.Errorf("memory: increment %q: quantity must not be negative, got %d", product, n)
	}
	var out inventory.StoreItem
	err := access(l.store, l.st, func(s *state) error {
		k := key(product)
		it, ok := s.items[k]
		if !ok {
			return inventory.ErrNotFound
		}
		it.Quantity += n
		s.items[k] = it
		out = it
		return nil
	})
	return out, err
}

func (l ledger) List(ctx context.Context) ([]inventory.StoreItem, error) {
	var out []inventory.StoreItem
	err := access(l.store, l.st, func(s *state) error {
		out = make([]inventory.StoreItem, 0, len(s.items))
		for _, it := range s.items {
			out = append(out, it)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b inventory.StoreItem) int { return strings.Compare(a.Product, b.Product) })
	return out, err
}

func (l ledger) Count(ctx context.Context) (int, error) {
	var n int
	err := access(l.store, l.st, func(s *state) error {
		n = len(s.items)
		return nil
	})
	return n, err
}

type users struct {
	store *Store
	st    *state
}

func (u users) Wishlist(ctx context.Context, username string) ([]wishlist.Entry, error) {
	out := []wishlist.Entry{}
	err := access(u.store, u.st, func(s *state) error {
		if rec, ok := s.users[username]; ok {
			out = slices.Clone(rec.wishlist)
		}
		return nil
	})
	return out, err
}

func (u users) AppendEntry(ctx context.Context, username string, e wishlist.Entry) error {
	return access(u.store, u.st, func(s *state) error {
		rec := s.user(username)
		rec.wishlist = append(rec.wishlist, e)
		return nil
	})
}

func (u users) RemoveEntry(ctx context.Context, username string, id uuid.UUID) error {
	return access(u.store, u.st, func(s *state) error {
		rec, ok := s.users[username]
		if !ok {
			return wishlist.ErrEntryNotFound
		}
		i := slices.IndexFunc(rec.wishlist, func(e wishlist.Entry) bool { return e.ID == id })
		if i < 0 {
			return wishlist.ErrEntryNotFound
		}
		rec.wishlist = slices.Delete(rec.wishlist, i, i+1)
		return nil
	})
}

func (u users) AppendHistory(ctx context.Context, username string, hr wishlist.HistoryRecord) error {
	return access(u.store, u.st, func(s *state) error {
		rec := s.user(username)
		rec.history = append(rec.history, hr)
		return nil
	})
}

func (u users) History(ctx context.Context, username string) ([]wishlist.HistoryRecord, error) {
	out := []wishlist.HistoryRecord{}
	err := access(u.store, u.st, func(s *state) error {
		if rec, ok := s.users[username]; ok {
			out = slices.Clone(rec.history)
		}
		return nil
	})
	return out, err
}

func (u users) Exists(ctx context.Context, username string) (bool, error) {
	var ok bool
	err := access(u.store, u.st, func(s *state) error {
		_, ok = s.users[username]
		return nil
	})
	return ok, err
}

func (u users) Count(ctx context.Context) (int, error) {
	var n int
	err := access(u.store, u.st, func(s *state) error {
		n = len(s.users)
		return nil
	})
	return n, err
}

func (s *state) user(username string) *userRecord {
	rec, ok := s.users[username]
	if !ok {
		rec = &userRecord{}
		s.users[username] = rec
	}
	return rec
}
