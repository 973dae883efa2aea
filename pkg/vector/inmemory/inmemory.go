// Package inmemory provides a brute-force in-memory vector driver for tests
// and local development.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/memd/pkg/vector"
)

// Driver implements vector.Driver with a linear cosine scan. Fine for test
// corpora; not intended for production scale.
type Driver struct {
	mu   sync.RWMutex
	docs map[string]vector.Document
}

// NewDriver creates an empty in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{docs: make(map[string]vector.Document)}
}

// Add stores documents, replacing any existing entry with the same ID.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		emb := make([]float32, len(doc.Embedding))
		copy(emb, doc.Embedding)
		doc.Embedding = emb
		d.docs[doc.ID] = doc
	}
	return nil
}

// Search scans all documents in the scope and returns the topK by cosine
// similarity, score descending, id ascending on ties.
func (d *Driver) Search(_ context.Context, embedding []float32, scopeKey string, topK int) ([]vector.QueryResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var results []vector.QueryResult
	for _, doc := range d.docs {
		if doc.ScopeKey != scopeKey {
			continue
		}
		results = append(results, vector.QueryResult{
			ID:    doc.ID,
			Score: vector.Cosine(embedding, doc.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes documents by id.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}
	return nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}
