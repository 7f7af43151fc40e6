// Package cache provides a small byte-oriented cache used to serve read views
// without hitting the database on every request.
//
// The cache is never authoritative. [GetOrLoad] treats every cache failure as
// a miss and falls back to the loader, so a Redis outage degrades latency,
// not correctness.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a key/value store with per-entry expiry.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores val under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// Generation counts invalidations of the keys it guards. Writers call Bump
// before deleting a key; [GetOrLoad] with [Guard] refuses to keep a value
// loaded across a Bump.
type Generation struct {
	n atomic.Uint64
}

// Bump records an invalidation.
func (g *Generation) Bump() { g.n.Add(1) }

func (g *Generation) load() uint64 {
	if g == nil {
		return 0
	}
	return g.n.Load()
}

// LoadOption configures [GetOrLoad].
type LoadOption func(*loadConfig)

type loadConfig struct {
	gen *Generation
}

// Guard ties the cached value to g. A load that overlaps a g.Bump is
// returned to the caller but not cached, and a Set that races a Bump is
// deleted again.
func Guard(g *Generation) LoadOption {
	return func(c *loadConfig) { c.gen = g }
}

// GetOrLoad returns the JSON-decoded value under key, calling load and
// storing its result on a miss. Cache read, decode and write failures are
// logged and otherwise ignored.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error), opts ...LoadOption) (T, error) {
	var cfg loadConfig
	for _, o := range opts {
		o(&cfg)
	}

	raw, err := c.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal(raw, &v)
		if uerr == nil {
			return v, nil
		}
		slog.Warn("cache: discarding undecodable entry", "key", key, "err", uerr)
	case !errors.Is(err, ErrMiss):
		slog.Warn("cache: read failed, falling back to loader", "key", key, "err", err)
	}

	before := cfg.gen.load()
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if cfg.gen.load() != before {
		slog.Debug("cache: invalidated during load, not caching", "key", key)
		return v, nil
	}

	b, merr := json.Marshal(v)
	if merr != nil {
		slog.Warn("cache: encode failed", "key", key, "err", merr)
		return v, nil
	}
	if serr := c.Set(ctx, key, b, ttl); serr != nil {
		slog.Warn("cache: write failed", "key", key, "err", serr)
		return v, nil
	}
	// A Bump between the check above and Set may have deleted the key
	// before our write landed.
	if cfg.gen.load() != before {
		if derr := c.Delete(context.WithoutCancel(ctx), key); derr != nil {
			slog.Warn("cache: delete of raced entry failed", "key", key, "err", derr)
		}
	}
	return v, nil
}

// Nop is a Cache that stores nothing. Every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Delete(context.Context, ...string) error { return nil }

func (Nop) Ping(context.Context) error { return nil }

func (Nop) Close() error { return nil }

var _ Cache = Nop{}
