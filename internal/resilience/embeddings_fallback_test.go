package resilience

import (
	"context"
	"errors"
	"testing"

	embmock "github.com/MrWong99/voicecart/pkg/provider/embeddings/mock"
)

func TestEmbeddingsFallback(t *testing.T) {
	t.Parallel()
	primary := &embmock.Provider{
		EmbedErr:        errors.New("connection refused"),
		EmbedBatchErr:   errors.New("connection refused"),
		DimensionsValue: 384,
		ModelIDValue:    "all-minilm",
	}
	secondary := &embmock.Provider{
		EmbedFunc:       func(text string) []float32 { return []float32{float32(len(text)), 0} },
		DimensionsValue: 384,
		ModelIDValue:    "all-minilm",
	}
	fb := NewEmbeddingsFallback(primary, "ollama-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5},
	})
	fb.AddFallback("ollama-remote", secondary)

	vec, err := fb.Embed(context.Background(), "Milk")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 4 {
		t.Errorf("vec = %v, want it from the fallback", vec)
	}

	batch, err := fb.EmbedBatch(context.Background(), []string{"Eggs", "Bread"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(batch) != 2 || batch[1][0] != 5 {
		t.Errorf("batch = %v", batch)
	}

	if fb.Dimensions() != 384 || fb.ModelID() != "all-minilm" {
		t.Errorf("metadata = %d %q, want the primary's", fb.Dimensions(), fb.ModelID())
	}
	if len(primary.EmbedCalls) != 1 || len(primary.EmbedBatchCalls) != 1 {
		t.Errorf("primary calls = %d/%d, want 1/1", len(primary.EmbedCalls), len(primary.EmbedBatchCalls))
	}
	if st := fb.Status(); st[0].Name != "ollama-local" || st[0].State != StateClosed {
		t.Errorf("Status()[0] = %+v", st[0])
	}
}
