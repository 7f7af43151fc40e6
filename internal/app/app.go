// Package app wires all voicecart subsystems into a running service.
//
// The App struct owns the full lifecycle: New opens storage, seeds the
// store, builds the product index and assembles the HTTP API; Run serves
// until its context is cancelled; Shutdown releases storage and cache.
//
// For testing, inject in-memory implementations via functional options
// (WithStore, WithCache, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecart/internal/api"
	"github.com/MrWong99/voicecart/internal/cache"
	"github.com/MrWong99/voicecart/internal/config"
	"github.com/MrWong99/voicecart/internal/health"
	"github.com/MrWong99/voicecart/internal/intent"
	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/observe"
	"github.com/MrWong99/voicecart/internal/recommend"
	"github.com/MrWong99/voicecart/internal/resolve"
	"github.com/MrWong99/voicecart/internal/storage/memory"
	"github.com/MrWong99/voicecart/internal/storage/postgres"
	"github.com/MrWong99/voicecart/internal/voice"
	"github.com/MrWong99/voicecart/internal/wishlist"
	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

// Store is the storage backend the application runs on. Both
// *memory.Store and *postgres.Store satisfy it.
type Store interface {
	wishlist.Store
	inventory.Seeder
	Close()
}

// assistant bundles the components whose tuning can be hot-reloaded.
type assistant struct {
	reconciler  *wishlist.Reconciler
	voice       *voice.Pipeline
	recommender *recommend.Recommender
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store   Store
	pgDims  int
	cache   cache.Cache
	views   *wishlist.Views
	index   recommend.Index
	metrics *observe.Metrics

	metricsHandler http.Handler
	level          *slog.LevelVar
	watcher        *config.Watcher

	current atomic.Pointer[assistant]
	handler http.Handler

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a storage backend instead of opening one from config.
// The caller keeps ownership; Shutdown does not close it.
func WithStore(s Store) Option {
	return func(a *App) { a.store = s }
}

// WithCache injects the store listing cache.
func WithCache(c cache.Cache) Option {
	return func(a *App) { a.cache = c }
}

// WithMetrics sets the instruments used by every component. Default:
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets config reloads change the level of the process logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders]; LLM and STT may be nil in tests, which disables
// voice recognition, and a nil Embeddings disables recommendations.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Seed + startup check ─────────────────────────────────────────
	if err := a.seed(ctx); err != nil {
		return nil, fmt.Errorf("app: seed store: %w", err)
	}

	// ── 3. Cache + read views ────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}
	a.views = wishlist.NewViews(a.store, a.cache, cfg.Cache.TTL)

	// ── 4. Product index ─────────────────────────────────────────────────
	a.initIndex(ctx)

	// ── 5. Assistant ─────────────────────────────────────────────────────
	a.current.Store(a.buildAssistant(cfg.Assistant))

	// ── 6. HTTP API ──────────────────────────────────────────────────────
	a.handler = a.buildHandler()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	switch a.cfg.Storage.Backend {
	case config.StoragePostgres:
		dims := a.cfg.Storage.EmbeddingDimensions
		if dims == 0 && a.providers.Embeddings != nil {
			dims = a.providers.Embeddings.Dimensions()
		}
		s, err := postgres.Open(ctx, a.cfg.Storage.PostgresDSN, dims)
		if err != nil {
			return err
		}
		a.store, a.pgDims = s, dims
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		slog.Info("connected to postgres", "embedding_dimensions", dims)
	default:
		s := memory.New()
		a.store = s
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		slog.Info("using in-memory storage; data is lost on restart")
	}
	return nil
}

// seed loads the catalog into an empty store when enabled, then logs the
// store and user counts. An empty store is a warning, not an error.
func (a *App) seed(ctx context.Context) error {
	if a.cfg.Storage.Seed {
		items := inventory.DefaultCatalog()
		if path := a.cfg.Storage.CatalogFile; path != "" {
			var err error
			if items, err = inventory.LoadCatalogFile(path); err != nil {
				return err
			}
		}
		n, err := a.store.SeedIfEmpty(ctx, items)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("seeded store", "items", n, "catalog", a.cfg.Storage.CatalogFile)
		}
	}

	items, err := a.store.Ledger().Count(ctx)
	if err != nil {
		return fmt.Errorf("count store items: %w", err)
	}
	users, err := a.store.Users().Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	slog.Info("database check", "store_items", items, "users", users)
	if items == 0 {
		slog.Warn("store is empty; start with -seed or storage.seed: true")
	}
	return nil
}

func (a *App) initCache(ctx context.Context) error {
	if a.cache != nil {
		return nil
	}
	cc := a.cfg.Cache
	switch cc.Backend {
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
			Prefix:   cc.Prefix,
		})
		if err != nil {
			return err
		}
		a.cache = r
		a.closers = append(a.closers, r.Close)
	case config.CacheNone:
		a.cache = cache.Nop{}
	default:
		a.cache = cache.NewMemory()
	}
	return nil
}

// initIndex picks the pgvector index when the postgres store has one and
// an in-memory index otherwise, then embeds every product not yet indexed.
// Failures leave recommendations working on whatever was indexed before.
func (a *App) initIndex(ctx context.Context) {
	emb := a.providers.Embeddings
	if emb == nil {
		slog.Info("no embeddings provider configured; recommendations disabled")
		return
	}

	var idx recommend.WritableIndex
	if pg, ok := a.store.(*postgres.Store); ok && a.pgDims > 0 {
		idx = pg.ProductIndex().WithModel(emb.ModelID())
	} else {
		idx = recommend.NewFlatIndex()
	}
	a.index = idx

	start := time.Now()
	n, err := recommend.Sync(ctx, a.store.Ledger(), emb, idx, recommend.SyncOptions{})
	if err != nil {
		slog.Warn("product index sync failed", "err", err)
		return
	}
	slog.Info("product index synced", "added", n, "model", emb.ModelID(), "duration", time.Since(start))
}

func (a *App) buildAssistant(ac config.AssistantConfig) *assistant {
	res := resolve.New(resolve.WithThreshold(ac.MatchThreshold))
	as := &assistant{
		reconciler: wishlist.NewReconciler(a.store,
			wishlist.WithResolver(res),
			wishlist.WithMetrics(a.metrics),
			wishlist.WithObserver(a.views.Observer()),
		),
	}

	if a.providers.LLM != nil && a.providers.STT != nil {
		var eopts []intent.ExtractorOption
		if ac.Temperature != nil {
			eopts = append(eopts, intent.WithTemperature(*ac.Temperature))
		}
		if ac.MaxTokens > 0 {
			eopts = append(eopts, intent.WithMaxTokens(ac.MaxTokens))
		}
		as.voice = voice.New(a.providers.STT, intent.NewExtractor(a.providers.LLM, eopts...),
			voice.WithLanguage(ac.Language),
			voice.WithMetrics(a.metrics, a.providers.STTName, a.providers.LLMName),
		)
	}

	if a.index != nil {
		as.recommender = recommend.New(a.views, a.providers.Embeddings, a.index,
			recommend.WithCandidates(ac.Recommendations.Candidates),
			recommend.WithLimit(ac.Recommendations.Limit),
			recommend.WithMetrics(a.metrics),
		)
	}
	return as
}

func (a *App) buildHandler() http.Handler {
	as := a.current.Load()

	checks := []health.Checker{
		{Name: "cache", Check: a.cache.Ping},
	}
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Checker{Name: "database", Check: p.Ping})
	}
	checks = append(checks, a.providers.Checks...)

	cfg := api.Config{
		Reconciler:     liveReconciler{a},
		Views:          a.views,
		Health:         health.New(database{a}, checks...),
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
		AllowedOrigins: a.cfg.Server.CORS.AllowedOrigins,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
	}
	if as.voice != nil {
		cfg.Voice = liveVoice{a}
	}
	if as.recommender != nil {
		cfg.Recommender = liveRecommender{a}
	}
	return api.New(cfg).Handler()
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Config reload ───────────────────────────────────────────────────────────

// WatchConfig polls path while [App.Run] is running and applies changes
// with [App.Reload].
func (a *App) WatchConfig(path string, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(path, a.Reload, opts...)
	if err != nil {
		return err
	}
	a.watcher = w
	return nil
}

// Reload applies the parts of next that can change at runtime: the log
// level and the assistant tuning. Changes to other sections are logged and
// take effect on the next start.
func (a *App) Reload(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AssistantChanged {
		a.current.Store(a.buildAssistant(next.Assistant))
		slog.Info("assistant settings reloaded",
			"match_threshold", next.Assistant.MatchThreshold,
			"language", next.Assistant.Language,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to a slog level. Unknown values map
// to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves the API on ln until ctx is cancelled, then drains in-flight
// requests for at most the configured shutdown timeout. A config watcher
// set up with [App.WatchConfig] runs alongside. Serve returns nil after a
// clean shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases storage and cache connections. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Adapters ────────────────────────────────────────────────────────────────

// database backs the /health summary.
type database struct{ a *App }

func (d database) Ping(ctx context.Context) error {
	if p, ok := d.a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (d database) Counts(ctx context.Context) (int, int, error) {
	return d.a.views.Counts(ctx)
}

// The live* adapters resolve the current assistant on every call so a
// reload applies to the next request.

type liveReconciler struct{ a *App }

func (l liveReconciler) Apply(ctx context.Context, username string, raw any) (wishlist.Result, error) {
	return l.a.current.Load().reconciler.Apply(ctx, username, raw)
}

type liveVoice struct{ a *App }

func (l liveVoice) Process(ctx context.Context, audio stt.Audio) (voice.Result, error) {
	return l.a.current.Load().voice.Process(ctx, audio)
}

type liveRecommender struct{ a *App }

func (l liveRecommender) Recommend(ctx context.Context, username string) ([]recommend.Recommendation, error) {
	return l.a.current.Load().recommender.Recommend(ctx, username)
}
