package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/voicecart/internal/inventory"
)

const itemColumns = `product, category, price::float8, quantity`

type ledger struct {
	db DB
}

func scanItem(row pgx.Row) (inventory.StoreItem, error) {
	var it inventory.StoreItem
	err := row.Scan(&it.Product, &it.Category, &it.Price, &it.Quantity)
	return it, err
}

func (l ledger) FindByName(ctx context.Context, name string) (inventory.StoreItem, error) {
	it, err := scanItem(l.db.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM store WHERE lower(product) = lower(btrim($1))`, name))
	if isNoRows(err) {
		return inventory.StoreItem{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.StoreItem{}, fmt.Errorf("postgres: find %q: %w", name, err)
	}
	return it, nil
}

// Decrement lowers stock only when enough is left. The row lock taken by the
// UPDATE serialises concurrent decrements of the same product.
func (l ledger) Decrement(ctx context.Context, product string, n int) (inventory.StoreItem, error) {
	if n <= 0 {
		return inventory.StoreItem{}, fmt.Errorf("postgres: decrement %q: quantity must be positive, got %d", product, n)
	}
	it, err := scanItem(l.db.QueryRow(ctx, `
		UPDATE store SET quantity = quantity - $2
		WHERE  lower(product) = lower($1) AND quantity >= $2
		RETURNING `+itemColumns, product, n))
	if err == nil {
		return it, nil
	}
	if !isNoRows(err) {
		return inventory.StoreItem{}, fmt.Errorf("postgres: decrement %q: %w", product, err)
	}

	// Zero rows: either the product is gone or stock is short.
	if _, ferr := l.FindByName(ctx, product); ferr != nil {
		return inventory.StoreItem{}, ferr
	}
	return inventory.StoreItem{}, inventory.ErrInsufficientStock
}

func (l ledger) Increment(ctx context.Context, product string, n int) (inventory.StoreItem, error) {
	if n < 0 {
		return inventory.StoreItem{}, fmt.Errorf("postgres: increment %q: quantity must not be negative, got %d", product, n)
	}
	it, err := scanItem(l.db.QueryRow(ctx, `
		UPDATE store SET quantity = quantity + $2
		WHERE  lower(product) = lower($1)
		RETURNING `+itemColumns, product, n))
	if isNoRows(err) {
		return inventory.StoreItem{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.StoreItem{}, fmt.Errorf("postgres: increment %q: %w", product, err)
	}
	return it, nil
}

func (l ledger) List(ctx context.Context) ([]inventory.StoreItem, error) {
	rows, err := l.db.Query(ctx, `SELECT `+itemColumns+` FROM store ORDER BY product`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list store: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.StoreItem, error) {
		return scanItem(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan store: %w", err)
	}
	if items == nil {
		items = []inventory.StoreItem{}
	}
	return items, nil
}

func (l ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRow(ctx, `SELECT count(*) FROM store`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count store: %w", err)
	}
	return n, nil
}
