package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/vector"
)

// Related is an existing memory together with its similarity to a candidate.
type Related struct {
	Memory *memory.Memory
	Score  float64
}

// Detector finds the memories related to a candidate fact. It combines the
// durable vector index with the job's working set: memories created or
// re-embedded earlier in the same job are not in the index yet, so their
// similarity is computed directly against the working-set embeddings, and a
// working-set embedding always wins over a stale index score for the same
// memory.
type Detector struct {
	index  vector.Driver
	params Params
}

// NewDetector returns a detector over the given index.
func NewDetector(index vector.Driver, params Params) *Detector {
	return &Detector{index: index, params: params.withDefaults()}
}

// FindRelated returns the memories related to the candidate embedding within
// the scope, ordered by score descending, filtered to the conflict floor and
// capped at TopK. Ties are broken by confidence, then recency, then id.
func (d *Detector) FindRelated(ctx context.Context, embedding []float32, scopeKey string, ws *workingSet, now time.Time) ([]Related, error) {
	scores := make(map[string]float64)

	results, err := d.index.Search(ctx, embedding, scopeKey, d.params.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	for _, r := range results {
		scores[r.ID] = r.Score
	}

	for id, vec := range ws.embeddings {
		scores[id] = vector.Cosine(embedding, vec)
	}

	related := make([]Related, 0, len(scores))
	for id, score := range scores {
		m := ws.get(id)
		if m == nil || !m.Live(now) {
			continue
		}
		if score < d.params.ConflictFloor {
			continue
		}
		related = append(related, Related{Memory: m, Score: score})
	}

	sort.Slice(related, func(i, j int) bool {
		a, b := related[i], related[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.Confidence != b.Memory.Confidence {
			return a.Memory.Confidence > b.Memory.Confidence
		}
		if !a.Memory.UpdatedAt.Equal(b.Memory.UpdatedAt) {
			return a.Memory.UpdatedAt.After(b.Memory.UpdatedAt)
		}
		return a.Memory.ID < b.Memory.ID
	})

	if len(related) > d.params.TopK {
		related = related[:d.params.TopK]
	}
	return related, nil
}
