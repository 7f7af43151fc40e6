package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Mock DB types.
// ---------------------------------------------------------------------------

func assign(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(vals), len(dest))
	}
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case *float64:
			*d = v.(float64)
		case *bool:
			*d = v.(bool)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockRow implements pgx.Row.
type mockRow struct {
	vals []any
	err  error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

func row(vals ...any) *mockRow { return &mockRow{vals: vals} }

var noRows = &mockRow{err: pgx.ErrNoRows}

// mockRows implements pgx.Rows.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return r.data[r.idx-1], nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		r.closed = true
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return assign(dest, r.data[r.idx-1]) }

// call records one statement sent to the mock.
type call struct {
	sql  string
	args []any
}

// mockDB implements Conn. Each handler receives the SQL with whitespace
// collapsed, which keeps matching on statement prefixes readable.
type mockDB struct {
	mu    sync.Mutex
	calls []call

	queryRowFunc func(sql string, args ...any) pgx.Row
	queryFunc    func(sql string, args ...any) (pgx.Rows, error)
	execFunc     func(sql string, args ...any) (pgconn.CommandTag, error)
	copyFunc     func(table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error)

	beginErr error
	txs      []*mockTx
}

func squash(sql string) string { return strings.Join(strings.Fields(sql), " ") }

func (m *mockDB) record(sql string, args []any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := squash(sql)
	m.calls = append(m.calls, call{sql: s, args: args})
	return s
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	s := m.record(sql, args)
	if m.queryRowFunc != nil {
		return m.queryRowFunc(s, args...)
	}
	return noRows
}

func (m *mockDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	s := m.record(sql, args)
	if m.queryFunc != nil {
		return m.queryFunc(s, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s := m.record(sql, args)
	if m.execFunc != nil {
		return m.execFunc(s, args...)
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (m *mockDB) Begin(context.Context) (pgx.Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	tx := &mockTx{db: m}
	m.mu.Lock()
	m.txs = append(m.txs, tx)
	m.mu.Unlock()
	return tx, nil
}

// sqls returns every recorded statement.
func (m *mockDB) sqls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.sql
	}
	return out
}

// mockTx implements pgx.Tx by delegating queries to its mockDB. Methods the
// store never calls are left to the embedded nil interface.
type mockTx struct {
	pgx.Tx
	db         *mockDB
	committed  bool
	rolledBack bool
}

func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *mockTx) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	if t.db.copyFunc != nil {
		return t.db.copyFunc(table, cols, src)
	}
	return 0, nil
}

func (t *mockTx) Commit(context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.committed = true
	return nil
}

func (t *mockTx) Rollback(context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}
