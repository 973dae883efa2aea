// Package vector provides interfaces and implementations for the similarity
// index consumed by duplicate detection. Every document carries the canonical
// scope key of its memory; searches are always restricted to one scope.
package vector

import "context"

// Document represents a stored embedding with its owning memory and scope.
type Document struct {
	// ID is the memory id the embedding belongs to.
	ID string

	// ScopeKey is the canonical scope key used to partition searches.
	ScopeKey string

	// Embedding is the vector representation of the memory's fact.
	Embedding []float32
}

// QueryResult is a search hit with its similarity score.
type QueryResult struct {
	// ID is the matched memory id.
	ID string

	// Score is the cosine similarity (higher = more similar, 1.0 = identical).
	Score float64
}

// Driver handles storage and scoped retrieval of embeddings.
type Driver interface {
	// Add stores documents. A document with an existing ID replaces the
	// stored embedding.
	Add(ctx context.Context, docs []Document) error

	// Search finds the topK most similar documents to the embedding within
	// one scope, ordered by descending score.
	Search(ctx context.Context, embedding []float32, scopeKey string, topK int) ([]QueryResult, error)

	// Delete removes documents by memory id.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
