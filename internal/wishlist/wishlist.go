// Package wishlist applies shopping intents to per-user wishlists while
// keeping the store inventory consistent.
//
// The [Reconciler] is the only writer. Every accepted intent produces three
// changes that commit together or not at all: the wishlist entry is added or
// removed, the store quantity is decremented or restored by the same amount,
// and the raw intent is appended to the user's history.
package wishlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voicecart/internal/inventory"
)

// ErrStorageUnavailable wraps every infrastructure failure surfaced by the
// reconciler, as opposed to a [*Rejection].
var ErrStorageUnavailable = errors.New("wishlist: storage unavailable")

// ErrEntryNotFound is returned by Users.RemoveEntry when the id is unknown.
var ErrEntryNotFound = errors.New("wishlist: entry not found")

// Entry is one line of a user's wishlist. Quantity is always positive and
// Action is always "add".
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Product   string    `json:"product"`
	Quantity  int       `json:"quantity"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
}

// HistoryRecord is an append-only audit record: the validated intent object
// as received, plus the server timestamp under the "timestamp" key.
type HistoryRecord struct {
	Intent     map[string]any `json:"intent"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Users stores wishlists and histories. A user exists once the first entry
// or history record is written for them.
//
// Implementations must be safe for concurrent use.
type Users interface {
	// Wishlist returns the user's entries in insertion order. Unknown users
	// have an empty wishlist and no error.
	Wishlist(ctx context.Context, username string) ([]Entry, error)

	// AppendEntry adds e to the end of the user's wishlist, creating the
	// user if needed.
	AppendEntry(ctx context.Context, username string, e Entry) error

	// RemoveEntry deletes exactly the entry with the given id.
	// Returns ErrEntryNotFound when the user has no such entry.
	RemoveEntry(ctx context.Context, username string, id uuid.UUID) error

	// AppendHistory appends rec to the user's history, creating the user if
	// needed.
	AppendHistory(ctx context.Context, username string, rec HistoryRecord) error

	// History returns the user's records oldest first.
	History(ctx context.Context, username string) ([]HistoryRecord, error)

	// Exists reports whether the user has ever been written.
	Exists(ctx context.Context, username string) (bool, error)

	// Count returns the number of known users.
	Count(ctx context.Context) (int, error)
}

// TxFunc is the body of a transaction. The ledger and users it receives are
// bound to the transaction.
type TxFunc func(ctx context.Context, ledger inventory.Ledger, users Users) error

// TxRunner runs fn atomically. When fn returns an error every change it made
// is discarded and the error is returned unchanged.
type TxRunner interface {
	RunInTx(ctx context.Context, fn TxFunc) error
}

// Store is what the reconciler and the read views need from a backend.
type Store interface {
	TxRunner
	Ledger() inventory.Ledger
	Users() Users
}
