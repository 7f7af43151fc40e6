package recommend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/recommend"
)

func TestFlatIndex_Nearest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := recommend.NewFlatIndex()
	for _, p := range []struct {
		name string
		vec  []float32
	}{
		{"A", []float32{0, 0}},
		{"B", []float32{3, 4}},
		{"C", []float32{1, 1}},
		{"D", []float32{1, 1}},
	} {
		if err := idx.Upsert(ctx, inventory.StoreItem{Product: p.name}, p.vec); err != nil {
			t.Fatalf("Upsert %s: %v", p.name, err)
		}
	}

	got, err := idx.Nearest(ctx, []float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	want := []struct {
		name string
		dist float64
	}{{"A", 0}, {"C", 2}, {"D", 2}}
	if len(got) != len(want) {
		t.Fatalf("got %d hits, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Item.Product != w.name || got[i].Distance != w.dist {
			t.Errorf("hit %d = %s/%v, want %s/%v", i, got[i].Item.Product, got[i].Distance, w.name, w.dist)
		}
	}

	// Replacing a vector moves the product.
	if err := idx.Upsert(ctx, inventory.StoreItem{Product: "B"}, []float32{0, 0.5}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, _ = idx.Nearest(ctx, []float32{0, 0}, 2)
	if got[1].Item.Product != "B" {
		t.Errorf("second hit = %s, want B after update", got[1].Item.Product)
	}
	if idx.Len() != 4 {
		t.Errorf("Len = %d, want 4", idx.Len())
	}
}

func TestFlatIndex_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := recommend.NewFlatIndex()

	got, err := idx.Nearest(ctx, []float32{1}, 5)
	if err != nil || len(got) != 0 {
		t.Errorf("empty index Nearest = %v, %v", got, err)
	}
	if err := idx.Upsert(ctx, inventory.StoreItem{Product: "A"}, nil); err == nil {
		t.Error("expected error for empty vector")
	}
	if err := idx.Upsert(ctx, inventory.StoreItem{Product: "A"}, []float32{1, 2}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, inventory.StoreItem{Product: "B"}, []float32{1}); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("Upsert err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := idx.Nearest(ctx, []float32{1, 2, 3}, 1); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("Nearest err = %v, want ErrDimensionMismatch", err)
	}
}
