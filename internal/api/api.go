// Package api serves the voicecart HTTP API.
//
//	POST /update_wishlist/{username}   apply a confirmed intent
//	GET  /wishlist/{username}          a user's wishlist
//	GET  /store                        the store listing
//	GET  /recommendations/{username}   similar products not yet wished for
//	POST /recognise_text_to_llm        voice upload to validated intent
//	GET  /health, /healthz, /readyz    see package health
//	GET  /metrics                      Prometheus scrape endpoint
//
// Errors are JSON objects with a single "detail" field.
package api

import (
	"context"
	"net/http"

	"github.com/MrWong99/voicecart/internal/health"
	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/observe"
	"github.com/MrWong99/voicecart/internal/recommend"
	"github.com/MrWong99/voicecart/internal/voice"
	"github.com/MrWong99/voicecart/internal/wishlist"
	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

// Reconciler applies intents. [*wishlist.Reconciler] satisfies it.
type Reconciler interface {
	Apply(ctx context.Context, username string, raw any) (wishlist.Result, error)
}

// Views is the read side. [*wishlist.Views] satisfies it.
type Views interface {
	Wishlist(ctx context.Context, username string) ([]wishlist.Entry, error)
	ListStore(ctx context.Context) ([]inventory.StoreItem, error)
}

// Recommender suggests products. [*recommend.Recommender] satisfies it.
type Recommender interface {
	Recommend(ctx context.Context, username string) ([]recommend.Recommendation, error)
}

// VoiceProcessor turns an upload into an intent. [*voice.Pipeline]
// satisfies it.
type VoiceProcessor interface {
	Process(ctx context.Context, audio stt.Audio) (voice.Result, error)
}

// Config wires a [Server]. Reconciler and Views are required; a nil
// Recommender or Voice disables the matching endpoint with 503.
type Config struct {
	Reconciler  Reconciler
	Views       Views
	Recommender Recommender
	Voice       VoiceProcessor
	Health      *health.Handler

	// Metrics instruments every request. Nil uses observe.DefaultMetrics.
	Metrics *observe.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	// AllowedOrigins restricts CORS. Empty allows every origin.
	AllowedOrigins []string

	// MaxUploadBytes caps voice uploads. Zero means 25 MiB.
	MaxUploadBytes int64
}

// Server holds the handlers. Create it with [New].
type Server struct {
	cfg Config
	mux *http.ServeMux
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	s := &Server{cfg: cfg, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /update_wishlist/{username}", s.handleUpdateWishlist)
	s.mux.HandleFunc("GET /wishlist/{username}", s.handleWishlist)
	s.mux.HandleFunc("GET /store", s.handleStore)
	s.mux.HandleFunc("GET /recommendations/{username}", s.handleRecommendations)
	s.mux.HandleFunc("POST /recognise_text_to_llm", s.handleRecognise)
	if cfg.Health != nil {
		cfg.Health.Register(s.mux)
	}
	if cfg.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", cfg.MetricsHandler)
	}
	return s
}

// Handler returns the routed API wrapped in CORS handling and request
// observability.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.cfg.Metrics)(cors(s.cfg.AllowedOrigins, s.mux))
}
