package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/pkg/provider/embeddings"
)

// Catalog lists the products to index.
type Catalog interface {
	List(ctx context.Context) ([]inventory.StoreItem, error)
}

// SyncOptions tunes [Sync].
type SyncOptions struct {
	// BatchSize is the number of product names per EmbedBatch call.
	// Default: 32.
	BatchSize int

	// Concurrency bounds the number of in-flight EmbedBatch calls.
	// Default: 4.
	Concurrency int
}

// Sync embeds every catalog product that is not yet in idx and upserts it.
// It returns the number of products added. Products already indexed are not
// re-embedded, so Sync is cheap to run on every start.
func Sync(ctx context.Context, catalog Catalog, emb embeddings.Provider, idx WritableIndex, opts SyncOptions) (int, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	items, err := catalog.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("recommend: sync: list catalog: %w", err)
	}
	have, err := idx.Products(ctx)
	if err != nil {
		return 0, fmt.Errorf("recommend: sync: list index: %w", err)
	}
	indexed := make(map[string]bool, len(have))
	for _, p := range have {
		indexed[p] = true
	}

	var missing []inventory.StoreItem
	for _, it := range items {
		if !indexed[it.Product] {
			missing = append(missing, it)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(missing); start += opts.BatchSize {
		batch := missing[start:min(start+opts.BatchSize, len(missing))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, it := range batch {
				texts[i] = it.Product
			}
			vecs, err := emb.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("recommend: sync: embed: %w", err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("recommend: sync: got %d vectors for %d products", len(vecs), len(batch))
			}
			for i, it := range batch {
				if err := idx.Upsert(gctx, it, vecs[i]); err != nil {
					return fmt.Errorf("recommend: sync: %w", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	slog.Info("product index synced", "added", len(missing), "total", len(items), "model", emb.ModelID())
	return len(missing), nil
}
