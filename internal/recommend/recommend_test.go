package recommend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/recommend"
	"github.com/MrWong99/voicecart/internal/storage/memory"
	"github.com/MrWong99/voicecart/internal/wishlist"
	"github.com/MrWong99/voicecart/pkg/provider/embeddings/mock"
)

// vectors places products on a line so that distances are easy to reason
// about: dairy near 0, bakery near 10, beverages near 20.
var vectors = map[string][]float32{
	"Milk":         {0, 0},
	"Cheese":       {1, 0},
	"Butter":       {2, 0},
	"Yogurt":       {3, 0},
	"Cream":        {4, 0},
	"Paneer":       {5, 0},
	"Bread":        {10, 0},
	"Bun":          {11, 0},
	"Orange Juice": {20, 0},
	"Cola":         {21, 0},
	"Milk Cheese":  {0.5, 0},
}

func catalog() []inventory.StoreItem {
	var items []inventory.StoreItem
	for _, p := range []string{"Milk", "Cheese", "Butter", "Yogurt", "Cream", "Paneer", "Bread", "Bun", "Orange Juice", "Cola"} {
		items = append(items, inventory.StoreItem{Product: p, Category: "grocery", Price: 10, Quantity: 50})
	}
	return items
}

func embedder() *mock.Provider {
	return &mock.Provider{
		DimensionsValue: 2,
		ModelIDValue:    "test-embed",
		EmbedFunc:       func(text string) []float32 { return vectors[text] },
	}
}

type fixture struct {
	store *memory.Store
	views *wishlist.Views
	rec   *wishlist.Reconciler
	index *recommend.FlatIndex
	emb   *mock.Provider
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	if _, err := s.SeedIfEmpty(ctx, catalog()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	idx := recommend.NewFlatIndex()
	emb := embedder()
	if _, err := recommend.Sync(ctx, s.Ledger(), emb, idx, recommend.SyncOptions{BatchSize: 3}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return fixture{
		store: s,
		views: wishlist.NewViews(s, nil, 0),
		rec:   wishlist.NewReconciler(s),
		index: idx,
		emb:   emb,
	}
}

func (f fixture) add(t *testing.T, user, product string) {
	t.Helper()
	_, err := f.rec.Apply(context.Background(), user, map[string]any{
		"product": product, "quantity": 1, "category": "grocery", "action": "add", "status": "pending",
	})
	if err != nil {
		t.Fatalf("add %s: %v", product, err)
	}
}

func TestRecommend_ExcludesWishlistAndLimits(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.add(t, "alice", "Milk")
	f.add(t, "alice", "Cheese")

	r := recommend.New(f.views, f.emb, f.index)
	got, err := r.Recommend(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	want := []string{"Butter", "Yogurt", "Cream", "Paneer", "Bread"}
	if len(got) != len(want) {
		t.Fatalf("got %d recommendations (%+v), want %d", len(got), got, len(want))
	}
	for i, w := range want {
		if got[i].Product != w {
			t.Errorf("rec[%d] = %s, want %s", i, got[i].Product, w)
		}
		if got[i].Category != "grocery" || got[i].Price != 10 {
			t.Errorf("rec[%d] = %+v, missing store details", i, got[i])
		}
	}

	last := f.emb.EmbedCalls[len(f.emb.EmbedCalls)-1]
	if last.Text != "Milk Cheese" {
		t.Errorf("embedded text = %q, want space-joined wishlist", last.Text)
	}
}

func TestRecommend_CandidatePoolBoundsResults(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.add(t, "alice", "Milk")

	r := recommend.New(f.views, f.emb, f.index, recommend.WithCandidates(3), recommend.WithLimit(5))
	got, err := r.Recommend(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	// Three candidates, one of which is Milk itself.
	if len(got) != 2 || got[0].Product != "Cheese" || got[1].Product != "Butter" {
		t.Errorf("got %+v, want Cheese and Butter", got)
	}
}

func TestRecommend_Notes(t *testing.T) {
	t.Parallel()

	f := setup(t)
	r := recommend.New(f.views, f.emb, f.index)
	ctx := context.Background()

	if _, err := r.Recommend(ctx, "ghost"); !errors.Is(err, recommend.ErrNoWishlist) {
		t.Errorf("unknown user err = %v, want ErrNoWishlist", err)
	}

	f.add(t, "bob", "Bread")
	if _, err := f.rec.Apply(ctx, "bob", map[string]any{
		"product": "bread", "quantity": 1, "category": "x", "action": "remove", "status": "pending",
	}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := r.Recommend(ctx, "bob"); !errors.Is(err, recommend.ErrEmptyWishlist) {
		t.Errorf("empty wishlist err = %v, want ErrEmptyWishlist", err)
	}
}

func TestRecommend_EmbedFailure(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.add(t, "alice", "Milk")
	f.emb.EmbedErr = errors.New("quota exceeded")

	r := recommend.New(f.views, f.emb, f.index)
	if _, err := r.Recommend(context.Background(), "alice"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSync_Incremental(t *testing.T) {
	t.Parallel()

	f := setup(t)
	if f.index.Len() != 10 {
		t.Fatalf("index len = %d, want 10", f.index.Len())
	}
	f.emb.Reset()

	n, err := recommend.Sync(context.Background(), f.store.Ledger(), f.emb, f.index, recommend.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n != 0 || len(f.emb.EmbedBatchCalls) != 0 {
		t.Errorf("second Sync added %d and made %d embed calls, want 0 and 0", n, len(f.emb.EmbedBatchCalls))
	}
}

func TestSync_EmbedError(t *testing.T) {
	t.Parallel()

	s := memory.New()
	if _, err := s.SeedIfEmpty(context.Background(), catalog()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	emb := &mock.Provider{EmbedBatchErr: errors.New("unavailable")}
	if _, err := recommend.Sync(context.Background(), s.Ledger(), emb, recommend.NewFlatIndex(), recommend.SyncOptions{}); err == nil {
		t.Fatal("expected error")
	}
}
