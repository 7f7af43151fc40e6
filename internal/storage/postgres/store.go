package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/wishlist"
)

// DB is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Conn is a DB that can open transactions. *pgxpool.Pool satisfies it.
type Conn interface {
	DB
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Compile-time interface checks.
var (
	_ wishlist.Store   = (*Store)(nil)
	_ inventory.Seeder = (*Store)(nil)
	_ inventory.Ledger = ledger{}
	_ wishlist.Users   = users{}
)

// Store is the PostgreSQL backend. All methods are safe for concurrent use.
type Store struct {
	conn  Conn
	pool  *pgxpool.Pool
	index *ProductIndex
}

// Open connects to the database at dsn, registers pgvector types on every
// pooled connection and runs [Migrate].
//
// dims is the embedding width of the product index, e.g. 384 for
// all-minilm or 1536 for text-embedding-3-small. Zero disables the index.
// Changing dims after the first migration requires a manual schema change.
func Open(ctx context.Context, dsn string, dims int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if dims > 0 {
		// The vector type must exist before pooled connections can
		// register it.
		if err := ensureVectorExtension(ctx, cfg.ConnConfig); err != nil {
			return nil, err
		}
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, err
	}

	s := New(pool)
	s.pool = pool
	return s, nil
}

func ensureVectorExtension(ctx context.Context, cfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, ddlExtension); err != nil {
		return fmt.Errorf("postgres: create vector extension: %w", err)
	}
	return nil
}

// New wraps an existing connection or pool. The caller runs [Migrate].
func New(conn Conn) *Store {
	return &Store{conn: conn, index: &ProductIndex{db: conn}}
}

// RunInTx implements wishlist.TxRunner. fn's ledger and users are bound to
// one transaction that commits when fn returns nil and rolls back otherwise.
func (s *Store) RunInTx(ctx context.Context, fn wishlist.TxFunc) error {
	return pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		return fn(ctx, ledger{db: tx}, users{db: tx, lock: true})
	})
}

// Ledger implements wishlist.Store.
func (s *Store) Ledger() inventory.Ledger { return ledger{db: s.conn} }

// Users implements wishlist.Store.
func (s *Store) Users() wishlist.Users { return users{db: s.conn} }

// ProductIndex returns the pgvector product index.
func (s *Store) ProductIndex() *ProductIndex { return s.index }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	var one int
	return s.conn.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Close releases the pool when the Store owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SeedIfEmpty implements inventory.Seeder. The check and the insert run in
// one transaction holding an exclusive table lock, so concurrent starts seed
// at most once.
func (s *Store) SeedIfEmpty(ctx context.Context, items []inventory.StoreItem) (int, error) {
	if err := inventory.ValidateCatalog(items); err != nil {
		return 0, fmt.Errorf("postgres: seed: %w", err)
	}

	var inserted int
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE store IN EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		var n int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM store`).Scan(&n); err != nil {
			return fmt.Errorf("count: %w", err)
		}
		if n > 0 {
			return nil
		}
		copied, err := tx.CopyFrom(ctx,
			pgx.Identifier{"store"},
			[]string{"product", "category", "price", "quantity"},
			pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
				it := items[i]
				return []any{it.Product, it.Category, it.Price, it.Quantity}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		inserted = int(copied)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: seed: %w", err)
	}
	return inserted, nil
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// Truncate deletes every row from every table, including the product index.
// The index table must exist.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `TRUNCATE history_records, wishlist_entries, users, product_embeddings, store`)
	if err != nil {
		return fmt.Errorf("postgres: truncate: %w", err)
	}
	return nil
}
