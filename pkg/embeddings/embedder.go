// Package embeddings
package embeddings

import "context"

// Embedder provides text embedding capabilities. Candidates normally arrive
// with an embedding computed upstream; the orchestrator falls back to an
// Embedder only when one is missing.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
