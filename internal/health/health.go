// Package health serves the liveness, readiness and status endpoints.
//
//   - /healthz: liveness, always 200 while the process serves HTTP.
//   - /readyz: readiness, 200 only when every registered [Checker] passes.
//   - /health: the status summary clients poll, with store and user counts.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecart/internal/observe"
)

// checkTimeout bounds a single probe.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Database is what the /health summary needs from storage.
type Database interface {
	Ping(ctx context.Context) error
	Counts(ctx context.Context) (storeItems, users int, err error)
}

type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Summary is the /health response body.
type Summary struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	StoreItems int    `json:"store_items"`
	Users      int    `json:"users"`
	Timestamp  string `json:"timestamp"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction.
type Handler struct {
	db       Database
	checkers []Checker
	now      func() time.Time
}

// New creates a Handler. db backs /health; checkers back /readyz.
func New(db Database, checkers ...Checker) *Handler {
	return &Handler{
		db:       db,
		checkers: append([]Checker(nil), checkers...),
		now:      time.Now,
	}
}

// Healthz always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResult{Status: "ok"})
}

// Readyz runs every checker concurrently, each with its own [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	res := probeResult{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Health pings storage and reports store and user counts, or 503 with the
// failure in detail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	fail := func(err error) {
		observe.Logger(ctx).Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "Service unhealthy: " + err.Error()})
	}
	if err := h.db.Ping(ctx); err != nil {
		fail(err)
		return
	}
	items, users, err := h.db.Counts(ctx)
	if err != nil {
		fail(err)
		return
	}
	writeJSON(w, http.StatusOK, Summary{
		Status:     "healthy",
		Database:   "connected",
		StoreItems: items,
		Users:      users,
		Timestamp:  h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
