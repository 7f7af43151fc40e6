package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/recommend"
)

var _ recommend.WritableIndex = (*ProductIndex)(nil)

// ProductIndex is the product embedding table with an HNSW index for L2
// distance. Obtain one via [Store.ProductIndex].
type ProductIndex struct {
	db    DB
	model string
}

// WithModel returns a copy of x that tags upserted vectors with model.
func (x *ProductIndex) WithModel(model string) *ProductIndex {
	return &ProductIndex{db: x.db, model: model}
}

// Upsert implements recommend.WritableIndex. The product must exist in the
// store table.
func (x *ProductIndex) Upsert(ctx context.Context, item inventory.StoreItem, vec []float32) error {
	_, err := x.db.Exec(ctx, `
		INSERT INTO product_embeddings (product, model, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (product) DO UPDATE SET
		    model     = EXCLUDED.model,
		    embedding = EXCLUDED.embedding`,
		item.Product, x.model, pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert embedding %q: %w", item.Product, err)
	}
	return nil
}

// Products implements recommend.WritableIndex.
func (x *ProductIndex) Products(ctx context.Context) ([]string, error) {
	rows, err := x.db.Query(ctx, `SELECT product FROM product_embeddings ORDER BY product`)
	if err != nil {
		return nil, fmt.Errorf("postgres: indexed products: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan indexed products: %w", err)
	}
	return names, nil
}

// Nearest implements recommend.Index. Distance is the squared L2 distance,
// and store details are read at query time.
func (x *ProductIndex) Nearest(ctx context.Context, vec []float32, k int) ([]recommend.Neighbor, error) {
	if k <= 0 {
		return []recommend.Neighbor{}, nil
	}
	rows, err := x.db.Query(ctx, `
		SELECT s.product, s.category, s.price::float8, s.quantity,
		       (e.embedding <-> $1) ^ 2 AS distance
		FROM   product_embeddings e
		JOIN   store s ON s.product = e.product
		ORDER  BY e.embedding <-> $1
		LIMIT  $2`, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("postgres: nearest: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (recommend.Neighbor, error) {
		var n recommend.Neighbor
		err := row.Scan(&n.Item.Product, &n.Item.Category, &n.Item.Price, &n.Item.Quantity, &n.Distance)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan nearest: %w", err)
	}
	if out == nil {
		out = []recommend.Neighbor{}
	}
	return out, nil
}
