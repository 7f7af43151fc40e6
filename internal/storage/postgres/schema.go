// Package postgres is the PostgreSQL storage backend for voicecart.
//
// One [pgxpool.Pool] backs the store ledger, the user wishlists and
// histories, and the pgvector product index. Every reconciliation runs in a
// single pgx transaction; stock is decremented with a conditional UPDATE so
// concurrent adds can never oversell.
//
//	store, err := postgres.Open(ctx, dsn, 384)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"
)

const ddlCore = `
CREATE TABLE IF NOT EXISTS store (
    product   TEXT           PRIMARY KEY,
    category  TEXT           NOT NULL DEFAULT '',
    price     NUMERIC(12, 2) NOT NULL DEFAULT 0,
    quantity  INTEGER        NOT NULL CHECK (quantity >= 0)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_store_product_lower
    ON store (lower(product));

CREATE TABLE IF NOT EXISTS users (
    username    TEXT         PRIMARY KEY,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS wishlist_entries (
    id          UUID         PRIMARY KEY,
    username    TEXT         NOT NULL REFERENCES users (username) ON DELETE CASCADE,
    position    BIGSERIAL,
    product     TEXT         NOT NULL,
    quantity    INTEGER      NOT NULL CHECK (quantity > 0),
    category    TEXT         NOT NULL DEFAULT '',
    action      TEXT         NOT NULL,
    status      TEXT         NOT NULL DEFAULT '',
    added_at    TEXT         NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wishlist_entries_user
    ON wishlist_entries (username, position);

CREATE TABLE IF NOT EXISTS history_records (
    id           BIGSERIAL    PRIMARY KEY,
    username     TEXT         NOT NULL REFERENCES users (username) ON DELETE CASCADE,
    intent       JSONB        NOT NULL,
    recorded_at  TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_records_user
    ON history_records (username, id);
`

// ddlProductIndex returns the product embedding DDL. The vector width is
// fixed when the table is first created.
func ddlProductIndex(dims int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS product_embeddings (
    product    TEXT        PRIMARY KEY REFERENCES store (product) ON DELETE CASCADE,
    model      TEXT        NOT NULL DEFAULT '',
    embedding  vector(%d)  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_product_embeddings_l2
    ON product_embeddings USING hnsw (embedding vector_l2_ops);
`, dims)
}

const ddlExtension = `CREATE EXTENSION IF NOT EXISTS vector;`

// Migrate creates every table and index if missing. It is idempotent and
// safe to run on each start. A dims of zero skips the product index.
func Migrate(ctx context.Context, db DB, dims int) error {
	statements := []string{ddlCore}
	if dims > 0 {
		statements = append(statements, ddlExtension, ddlProductIndex(dims))
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
