package wishlist

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voicecart/internal/intent"
	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/observe"
	"github.com/MrWong99/voicecart/internal/resolve"
)

// Result is the outcome of a committed intent.
type Result struct {
	// Message is the human-readable confirmation.
	Message string

	// Data echoes the validated intent object including its server timestamp.
	Data map[string]any
}

// Outcome describes one Apply call to observers.
type Outcome struct {
	Username string

	// Action is the normalised action, "unknown" for invalid intents and
	// "unsupported" for actions the reconciler does not handle.
	Action string

	// Product and Quantity describe the committed change.
	Product  string
	Quantity int

	Committed bool
	Rejection *Rejection
	Err       error
	Duration  time.Duration
}

// Result returns a low-cardinality label: "committed", "error" or the
// rejection kind.
func (o Outcome) Result() string {
	switch {
	case o.Committed:
		return "committed"
	case o.Rejection != nil:
		return string(o.Rejection.Kind)
	default:
		return "error"
	}
}

// Observer is notified after every Apply, committed or not.
type Observer func(ctx context.Context, o Outcome)

// Option is a functional option for configuring a [Reconciler].
type Option func(*Reconciler)

// WithResolver replaces the default fuzzy resolver used for removals.
func WithResolver(res *resolve.Resolver) Option {
	return func(r *Reconciler) { r.resolver = res }
}

// WithClock sets the time source for timestamps. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithMetrics records a reconciliation counter and latency histogram.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithObserver registers fn to be called after every Apply. Observers run
// synchronously on the caller's goroutine in registration order.
func WithObserver(fn Observer) Option {
	return func(r *Reconciler) { r.observers = append(r.observers, fn) }
}

// Reconciler validates intents and applies them transactionally.
// It is safe for concurrent use; all shared state lives in the TxRunner.
type Reconciler struct {
	tx        TxRunner
	resolver  *resolve.Resolver
	now       func() time.Time
	metrics   *observe.Metrics
	observers []Observer
}

// NewReconciler returns a Reconciler that commits through tx.
func NewReconciler(tx TxRunner, opts ...Option) *Reconciler {
	r := &Reconciler{
		tx:       tx,
		resolver: resolve.New(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Apply validates raw and applies it to username's wishlist.
//
// Expected refusals come back as a *Rejection error and leave storage
// untouched. Any other error wraps ErrStorageUnavailable; the transaction
// was rolled back.
func (r *Reconciler) Apply(ctx context.Context, username string, raw any) (Result, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "wishlist.apply",
		trace.WithAttributes(attribute.String("wishlist.username", username)),
	)
	defer span.End()

	res, out, err := r.apply(ctx, username, raw)

	out.Username = username
	out.Duration = time.Since(start)
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			out.Rejection = rej
		} else {
			out.Err = err
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		out.Committed = true
	}
	span.SetAttributes(
		attribute.String("wishlist.action", out.Action),
		attribute.String("wishlist.result", out.Result()),
	)

	log := observe.Logger(ctx).With("username", username, "action", out.Action)
	switch {
	case out.Committed:
		log.Info("wishlist updated", "product", out.Product, "quantity", out.Quantity)
	case out.Rejection != nil:
		log.Info("intent rejected", "kind", out.Rejection.Kind, "reason", out.Rejection.Message)
	default:
		log.Error("wishlist update failed", "err", err)
	}

	if r.metrics != nil {
		r.metrics.RecordReconciliation(ctx, out.Action, out.Result(), out.Duration)
	}
	for _, fn := range r.observers {
		fn(ctx, out)
	}
	return res, err
}

func (r *Reconciler) apply(ctx context.Context, username string, raw any) (Result, Outcome, error) {
	in, err := intent.Parse(raw)
	if err != nil {
		return Result{}, Outcome{Action: "unknown"}, reject(InvalidIntent, "Invalid LLM response format")
	}

	switch {
	case in.Action == intent.ActionAdd:
		out := Outcome{Action: string(in.Action)}
		if in.Quantity < 1 {
			return Result{}, out, reject(InvalidIntent, "Invalid LLM response format")
		}
		return r.add(ctx, username, in, out)
	case in.Action.IsRemoval():
		return r.remove(ctx, username, in, Outcome{Action: string(in.Action)})
	default:
		return Result{}, Outcome{Action: "unsupported"}, reject(UnsupportedAction, "Unsupported action: %s", in.RawAction)
	}
}

func (r *Reconciler) add(ctx context.Context, username string, in intent.Intent, out Outcome) (Result, Outcome, error) {
	now := r.now()
	record := in.Record(now)

	err := r.tx.RunInTx(ctx, func(ctx context.Context, ledger inventory.Ledger, users Users) error {
		item, err := ledger.FindByName(ctx, in.Product)
		if errors.Is(err, inventory.ErrNotFound) {
			return reject(ProductNotFound, "No item '%s' found in store", in.Product)
		}
		if err != nil {
			return fmt.Errorf("find %q: %w", in.Product, err)
		}
		if in.Quantity > item.Quantity {
			return insufficient(item)
		}

		if _, err := ledger.Decrement(ctx, item.Product, in.Quantity); err != nil {
			if errors.Is(err, inventory.ErrInsufficientStock) {
				// Stock moved since the read; report the current level.
				if cur, ferr := ledger.FindByName(ctx, item.Product); ferr == nil {
					item = cur
				}
				return insufficient(item)
			}
			return fmt.Errorf("decrement %q: %w", item.Product, err)
		}

		category := item.Category
		if category == "" {
			category = in.Category
		}
		entry := Entry{
			ID:        uuid.New(),
			Product:   item.Product,
			Quantity:  in.Quantity,
			Category:  category,
			Action:    string(intent.ActionAdd),
			Status:    in.Status,
			Timestamp: intent.FormatTimestamp(now),
		}
		if err := users.AppendEntry(ctx, username, entry); err != nil {
			return fmt.Errorf("append entry: %w", err)
		}
		if err := users.AppendHistory(ctx, username, HistoryRecord{Intent: maps.Clone(record), RecordedAt: now}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		out.Product, out.Quantity = entry.Product, entry.Quantity
		return nil
	})
	if err != nil {
		return Result{}, out, classify(err)
	}
	return Result{Message: "Product added to wishlist and stock updated", Data: record}, out, nil
}

func (r *Reconciler) remove(ctx context.Context, username string, in intent.Intent, out Outcome) (Result, Outcome, error) {
	now := r.now()
	record := in.Record(now)

	err := r.tx.RunInTx(ctx, func(ctx context.Context, ledger inventory.Ledger, users Users) error {
		entries, err := users.Wishlist(ctx, username)
		if err != nil {
			return fmt.Errorf("load wishlist: %w", err)
		}
		match, ok := resolve.Find(r.resolver, in.Product, entries, func(e Entry) string { return e.Product })
		if !ok {
			return reject(ProductNotFound, "No matching product found for '%s'", in.Product)
		}

		if err := users.RemoveEntry(ctx, username, match.ID); err != nil {
			return fmt.Errorf("remove entry %s: %w", match.ID, err)
		}
		if err := users.AppendHistory(ctx, username, HistoryRecord{Intent: maps.Clone(record), RecordedAt: now}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		if _, err := ledger.Increment(ctx, match.Product, match.Quantity); err != nil {
			if errors.Is(err, inventory.ErrNotFound) {
				return reject(ProductNotFound, "No item '%s' found in store", match.Product)
			}
			return fmt.Errorf("increment %q: %w", match.Product, err)
		}
		out.Product, out.Quantity = match.Product, match.Quantity
		return nil
	})
	if err != nil {
		return Result{}, out, classify(err)
	}
	return Result{
		Message: fmt.Sprintf("Product '%s' removed from wishlist and stock restored", out.Product),
		Data:    record,
	}, out, nil
}

func insufficient(item inventory.StoreItem) *Rejection {
	return reject(InsufficientStock, "Only %d × %s available in store", item.Quantity, item.Product)
}

func classify(err error) error {
	if rej, ok := AsRejection(err); ok {
		return rej
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
