// Package embeddings defines the Provider interface for vector embedding backends.
//
// voicecart embeds store product names once when the product index is built
// and embeds a user's wishlist text on every recommendation request. The
// vectors are compared with L2 distance, so every vector produced by one
// Provider must share the same dimensionality.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
type Provider interface {
	// Embed computes the embedding vector for a single text. The text is sent
	// verbatim; any model-specific prefixing is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes one vector per input text in a single call. The i-th
	// result corresponds to texts[i]. On error no partial result is returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced.
	Dimensions() int

	// ModelID returns the model identifier (e.g. "text-embedding-3-small").
	ModelID() string
}
