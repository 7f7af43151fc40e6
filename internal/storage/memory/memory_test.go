package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/storage/memory"
	"github.com/MrWong99/voicecart/internal/wishlist"
)

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	n, err := s.SeedIfEmpty(context.Background(), []inventory.StoreItem{
		{Product: "Milk", Category: "dairy", Price: 40, Quantity: 100},
		{Product: "Bread", Category: "bakery", Price: 30, Quantity: 3},
	})
	if err != nil || n != 2 {
		t.Fatalf("SeedIfEmpty = %d, %v", n, err)
	}
	return s
}

func TestSeedIfEmpty_OnlyOnce(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	n, err := s.SeedIfEmpty(context.Background(), inventory.DefaultCatalog())
	if err != nil {
		t.Fatalf("SeedIfEmpty: %v", err)
	}
	if n != 0 {
		t.Errorf("second seed inserted %d items, want 0", n)
	}
	if c, _ := s.Ledger().Count(context.Background()); c != 2 {
		t.Errorf("Count = %d, want 2", c)
	}
}

func TestSeedIfEmpty_RejectsInvalidCatalog(t *testing.T) {
	t.Parallel()

	_, err := memory.New().SeedIfEmpty(context.Background(), []inventory.StoreItem{
		{Product: "Milk", Quantity: 1},
		{Product: "milk", Quantity: 1},
	})
	if err == nil {
		t.Fatal("expected duplicate product error")
	}
}

func TestLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := seeded(t).Ledger()

	it, err := l.FindByName(ctx, "  mILk ")
	if err != nil || it.Product != "Milk" {
		t.Fatalf("FindByName = %+v, %v", it, err)
	}
	if _, err := l.FindByName(ctx, "Caviar"); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("FindByName(Caviar) err = %v, want ErrNotFound", err)
	}

	it, err = l.Decrement(ctx, "bread", 3)
	if err != nil || it.Quantity != 0 {
		t.Fatalf("Decrement = %+v, %v", it, err)
	}
	if _, err := l.Decrement(ctx, "bread", 1); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Errorf("Decrement below zero err = %v, want ErrInsufficientStock", err)
	}
	if _, err := l.Decrement(ctx, "bread", 0); err == nil {
		t.Error("Decrement(0) should fail")
	}
	if _, err := l.Increment(ctx, "Caviar", 1); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("Increment(Caviar) err = %v, want ErrNotFound", err)
	}
	it, err = l.Increment(ctx, "Bread", 2)
	if err != nil || it.Quantity != 2 {
		t.Fatalf("Increment = %+v, %v", it, err)
	}

	items, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].Product != "Bread" || items[1].Product != "Milk" {
		t.Errorf("List = %+v, want Bread then Milk", items)
	}
}

func TestUsers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	u := memory.New().Users()

	wl, err := u.Wishlist(ctx, "ghost")
	if err != nil || wl == nil || len(wl) != 0 {
		t.Fatalf("Wishlist(ghost) = %#v, %v; want empty non-nil", wl, err)
	}
	if ok, _ := u.Exists(ctx, "ghost"); ok {
		t.Error("unknown user reported as existing")
	}

	a := wishlist.Entry{ID: uuid.New(), Product: "Milk", Quantity: 2}
	b := wishlist.Entry{ID: uuid.New(), Product: "Milk", Quantity: 5}
	for _, e := range []wishlist.Entry{a, b} {
		if err := u.AppendEntry(ctx, "alice", e); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}
	if err := u.RemoveEntry(ctx, "alice", b.ID); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if err := u.RemoveEntry(ctx, "alice", b.ID); !errors.Is(err, wishlist.ErrEntryNotFound) {
		t.Errorf("second RemoveEntry err = %v, want ErrEntryNotFound", err)
	}

	wl, _ = u.Wishlist(ctx, "alice")
	if len(wl) != 1 || wl[0].ID != a.ID {
		t.Errorf("Wishlist = %+v, want only the first entry", wl)
	}
	if n, _ := u.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, l inventory.Ledger, u wishlist.Users) error {
		if _, err := l.Decrement(ctx, "Milk", 10); err != nil {
			return err
		}
		if err := u.AppendEntry(ctx, "alice", wishlist.Entry{ID: uuid.New(), Product: "Milk", Quantity: 10}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx err = %v, want boom", err)
	}

	it, _ := s.Ledger().FindByName(ctx, "Milk")
	if it.Quantity != 100 {
		t.Errorf("Milk = %d after rollback, want 100", it.Quantity)
	}
	if ok, _ := s.Users().Exists(ctx, "alice"); ok {
		t.Error("user created by rolled back transaction")
	}
}

func TestRunInTx_CancelledContext(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.RunInTx(ctx, func(ctx context.Context, l inventory.Ledger, _ wishlist.Users) error {
		_, err := l.Decrement(ctx, "Milk", 1)
		cancel()
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunInTx err = %v, want context.Canceled", err)
	}
	it, _ := s.Ledger().FindByName(context.Background(), "Milk")
	if it.Quantity != 100 {
		t.Errorf("Milk = %d after cancelled commit, want 100", it.Quantity)
	}
}

func TestRunInTx_Commits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := seeded(t)
	err := s.RunInTx(ctx, func(ctx context.Context, l inventory.Ledger, u wishlist.Users) error {
		if _, err := l.Decrement(ctx, "Milk", 5); err != nil {
			return err
		}
		return u.AppendHistory(ctx, "alice", wishlist.HistoryRecord{Intent: map[string]any{"product": "Milk"}})
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	it, _ := s.Ledger().FindByName(ctx, "Milk")
	if it.Quantity != 95 {
		t.Errorf("Milk = %d, want 95", it.Quantity)
	}
	h, _ := s.Users().History(ctx, "alice")
	if len(h) != 1 {
		t.Errorf("history length = %d, want 1", len(h))
	}
}
