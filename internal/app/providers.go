package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voicecart/internal/config"
	"github.com/MrWong99/voicecart/internal/health"
	"github.com/MrWong99/voicecart/internal/resilience"
	"github.com/MrWong99/voicecart/pkg/provider/embeddings"
	"github.com/MrWong99/voicecart/pkg/provider/llm"
	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Transcriber
	Embeddings embeddings.Provider

	// LLMName and STTName label provider metrics. They name the primary
	// backend of each slot.
	LLMName string
	STTName string

	// Checks report whether each slot has at least one backend whose
	// circuit breaker admits calls. They back /readyz.
	Checks []health.Checker
}

// BuildProviders instantiates every provider named in cfg via reg. Each
// configured slot is wrapped in a circuit-breaking fallback group over its
// primary and fallbacks, even when no fallbacks are listed.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	pc := cfg.Providers
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:   pc.CircuitBreaker.MaxFailures,
			ResetTimeout:  pc.CircuitBreaker.ResetTimeout,
			HalfOpenMax:   pc.CircuitBreaker.HalfOpenMax,
			OnStateChange: logBreakerChange,
		},
	}
	ps := &Providers{}

	if pc.LLM.Name != "" {
		primary, err := reg.CreateLLM(pc.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", pc.LLM.Name, err)
		}
		fb := resilience.NewLLMFallback(primary, pc.LLM.Name, fbCfg)
		for _, e := range pc.LLM.Fallbacks {
			p, err := reg.CreateLLM(e)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", e.Name, err)
			}
			fb.AddFallback(e.Name, p)
		}
		ps.LLM, ps.LLMName = fb, pc.LLM.Name
		ps.Checks = append(ps.Checks, groupCheck("llm", fb.Status))
		slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "model", primary.ModelID(), "fallbacks", len(pc.LLM.Fallbacks))
	}

	if pc.STT.Name != "" {
		primary, err := reg.CreateSTT(pc.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", pc.STT.Name, err)
		}
		fb := resilience.NewSTTFallback(primary, pc.STT.Name, fbCfg)
		for _, e := range pc.STT.Fallbacks {
			p, err := reg.CreateSTT(e)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", e.Name, err)
			}
			fb.AddFallback(e.Name, p)
		}
		ps.STT, ps.STTName = fb, pc.STT.Name
		ps.Checks = append(ps.Checks, groupCheck("stt", fb.Status))
		slog.Info("provider created", "kind", "stt", "name", pc.STT.Name, "fallbacks", len(pc.STT.Fallbacks))
	}

	if pc.Embeddings.Name != "" {
		primary, err := reg.CreateEmbeddings(pc.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", pc.Embeddings.Name, err)
		}
		fb := resilience.NewEmbeddingsFallback(primary, pc.Embeddings.Name, fbCfg)
		for _, e := range pc.Embeddings.Fallbacks {
			p, err := reg.CreateEmbeddings(e)
			if err != nil {
				return nil, fmt.Errorf("create embeddings fallback %q: %w", e.Name, err)
			}
			fb.AddFallback(e.Name, p)
		}
		ps.Embeddings = fb
		ps.Checks = append(ps.Checks, groupCheck("embeddings", fb.Status))
		slog.Info("provider created", "kind", "embeddings", "name", pc.Embeddings.Name, "model", primary.ModelID(), "fallbacks", len(pc.Embeddings.Fallbacks))
	}

	return ps, nil
}

// groupCheck fails while every backend in a fallback group has an open
// circuit breaker.
func groupCheck(kind string, status func() []resilience.BackendStatus) health.Checker {
	return health.Checker{
		Name: kind,
		Check: func(context.Context) error {
			backends := status()
			for _, b := range backends {
				if b.State != resilience.StateOpen {
					return nil
				}
			}
			if len(backends) == 0 {
				return nil
			}
			return errors.New("all " + kind + " backends have open circuit breakers")
		},
	}
}

func logBreakerChange(name string, from, to resilience.State) {
	lvl := slog.LevelInfo
	if to == resilience.StateOpen {
		lvl = slog.LevelWarn
	}
	slog.Log(context.Background(), lvl, "provider circuit breaker", "provider", name, "from", from.String(), "to", to.String())
}
