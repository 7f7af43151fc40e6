package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/voicecart/internal/wishlist"
)

type users struct {
	db DB

	// lock makes Wishlist take row locks, so a concurrent removal of the
	// same entry waits and then no longer sees it.
	lock bool
}

func (u users) Wishlist(ctx context.Context, username string) ([]wishlist.Entry, error) {
	q := `
		SELECT id::text, product, quantity, category, action, status, added_at
		FROM   wishlist_entries
		WHERE  username = $1
		ORDER  BY position`
	if u.lock {
		q += ` FOR UPDATE`
	}
	rows, err := u.db.Query(ctx, q, username)
	if err != nil {
		return nil, fmt.Errorf("postgres: wishlist %q: %w", username, err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wishlist.Entry, error) {
		var (
			e  wishlist.Entry
			id string
		)
		if err := row.Scan(&id, &e.Product, &e.Quantity, &e.Category, &e.Action, &e.Status, &e.Timestamp); err != nil {
			return wishlist.Entry{}, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return wishlist.Entry{}, fmt.Errorf("entry id %q: %w", id, err)
		}
		e.ID = parsed
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan wishlist %q: %w", username, err)
	}
	if entries == nil {
		entries = []wishlist.Entry{}
	}
	return entries, nil
}

func (u users) ensureUser(ctx context.Context, username string) error {
	if _, err := u.db.Exec(ctx,
		`INSERT INTO users (username) VALUES ($1) ON CONFLICT (username) DO NOTHING`, username); err != nil {
		return fmt.Errorf("postgres: create user %q: %w", username, err)
	}
	return nil
}

func (u users) AppendEntry(ctx context.Context, username string, e wishlist.Entry) error {
	if err := u.ensureUser(ctx, username); err != nil {
		return err
	}
	_, err := u.db.Exec(ctx, `
		INSERT INTO wishlist_entries
		    (id, username, product, quantity, category, action, status, added_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID.String(), username, e.Product, e.Quantity, e.Category, e.Action, e.Status, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: append entry: %w", err)
	}
	return nil
}

func (u users) RemoveEntry(ctx context.Context, username string, id uuid.UUID) error {
	tag, err := u.db.Exec(ctx,
		`DELETE FROM wishlist_entries WHERE username = $1 AND id = $2::uuid`, username, id.String())
	if err != nil {
		return fmt.Errorf("postgres: remove entry %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return wishlist.ErrEntryNotFound
	}
	return nil
}

func (u users) AppendHistory(ctx context.Context, username string, rec wishlist.HistoryRecord) error {
	if err := u.ensureUser(ctx, username); err != nil {
		return err
	}
	intentJSON, err := json.Marshal(rec.Intent)
	if err != nil {
		return fmt.Errorf("postgres: marshal intent: %w", err)
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	if _, err := u.db.Exec(ctx,
		`INSERT INTO history_records (username, intent, recorded_at) VALUES ($1, $2, $3)`,
		username, intentJSON, recordedAt.UTC(),
	); err != nil {
		return fmt.Errorf("postgres: append history: %w", err)
	}
	return nil
}

func (u users) History(ctx context.Context, username string) ([]wishlist.HistoryRecord, error) {
	rows, err := u.db.Query(ctx, `
		SELECT intent, recorded_at
		FROM   history_records
		WHERE  username = $1
		ORDER  BY id`, username)
	if err != nil {
		return nil, fmt.Errorf("postgres: history %q: %w", username, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wishlist.HistoryRecord, error) {
		var (
			rec wishlist.HistoryRecord
			raw []byte
		)
		if err := row.Scan(&raw, &rec.RecordedAt); err != nil {
			return wishlist.HistoryRecord{}, err
		}
		if err := json.Unmarshal(raw, &rec.Intent); err != nil {
			return wishlist.HistoryRecord{}, fmt.Errorf("unmarshal intent: %w", err)
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history %q: %w", username, err)
	}
	if out == nil {
		out = []wishlist.HistoryRecord{}
	}
	return out, nil
}

func (u users) Exists(ctx context.Context, username string) (bool, error) {
	var ok bool
	if err := u.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: user exists %q: %w", username, err)
	}
	return ok, nil
}

func (u users) Count(ctx context.Context) (int, error) {
	var n int
	if err := u.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count users: %w", err)
	}
	return n, nil
}
