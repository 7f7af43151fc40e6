package resilience

import (
	"context"

	"github.com/MrWong99/voicecart/pkg/provider/embeddings"
)

// EmbeddingsFallback implements [embeddings.Provider] with failover.
//
// Vectors from different models are not comparable, so every fallback must
// produce vectors in the same space as the primary, e.g. the same model
// served from a second endpoint.
type EmbeddingsFallback struct {
	group *FallbackGroup[embeddings.Provider]
}

var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback creates an [EmbeddingsFallback] with primary as the
// preferred backend.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg FallbackConfig) *EmbeddingsFallback {
	return &EmbeddingsFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional provider as a fallback.
func (f *EmbeddingsFallback) AddFallback(name string, p embeddings.Provider) {
	f.group.AddFallback(name, p)
}

func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the primary's vector width.
func (f *EmbeddingsFallback) Dimensions() int { return f.group.entries[0].value.Dimensions() }

// ModelID returns the primary's model.
func (f *EmbeddingsFallback) ModelID() string { return f.group.entries[0].value.ModelID() }

// Status reports each backend's breaker state.
func (f *EmbeddingsFallback) Status() []BackendStatus { return f.group.Status() }
