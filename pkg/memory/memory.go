// Package memory defines the domain model of the consolidation engine:
// memories, their immutable revision history, candidate facts awaiting
// consolidation, and consolidation jobs.
//
// Memories are durable, deduplicated facts scoped to an identity boundary
// (see [Scope]). Every mutation of a memory is recorded as a [Revision] with
// a gapless, strictly increasing revision number; the latest revision's fact
// always equals the memory's current fact.
package memory

import (
	"time"
)

// RevisionAction tags what kind of mutation a revision records.
type RevisionAction string

const (
	ActionCreated RevisionAction = "CREATED"
	ActionUpdated RevisionAction = "UPDATED"
	ActionMerged  RevisionAction = "MERGED"
	ActionDeleted RevisionAction = "DELETED"
)

// Memory is a durable, deduplicated fact within a scope.
type Memory struct {
	// ID is an opaque identifier. IDs are ULIDs, so lexical order is also
	// creation-time order — the deterministic "smallest id wins" tie-break
	// therefore prefers the oldest memory.
	ID string `json:"id"`

	Scope Scope `json:"-"`

	// Fact is the current consolidated fact text.
	Fact string `json:"fact"`

	// Topic is the classification label used as the conflict key within a
	// scope ("location", "preference.drink", ...).
	Topic string `json:"topic"`

	// Confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// EmbeddingRef is an opaque pointer into the vector index.
	EmbeddingRef string `json:"embedding_ref,omitempty"`

	// RevisionCount is the highest revision number recorded for this memory.
	RevisionCount int `json:"revision_count"`

	// Superseded marks a memory that lost a contradiction or was collapsed
	// into a merge target. Superseded memories are excluded from duplicate
	// detection but keep their full revision history.
	Superseded bool `json:"superseded"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Live reports whether the memory participates in duplicate detection and
// conflict resolution: not superseded and not expired at the given instant.
func (m *Memory) Live(now time.Time) bool {
	if m.Superseded {
		return false
	}
	if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Revision is an immutable snapshot of a memory's state at a point in time.
// Revisions for one memory form a contiguous sequence starting at 1.
type Revision struct {
	MemoryID string         `json:"memory_id"`
	Number   int            `json:"revision_number"`
	Action   RevisionAction `json:"action"`

	// Fact is the full fact text at this revision.
	Fact       string  `json:"fact"`
	Confidence float64 `json:"confidence"`

	// SourceJobID is the consolidation job that produced this revision.
	SourceJobID string `json:"source_job_id,omitempty"`

	// CandidateIDs lists the candidate facts that contributed.
	CandidateIDs []string `json:"candidate_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CandidateFact is an ephemeral unit of extracted information awaiting
// consolidation. Candidates are never persisted directly; they are resolved
// into a memory mutation or discarded.
type CandidateFact struct {
	ID    string `json:"id"`
	Fact  string `json:"fact"`
	Topic string `json:"topic"`

	// Embedding is the candidate's vector, computed upstream. May be empty
	// on arrival; the orchestrator re-derives it when an embedder is
	// configured.
	Embedding []float32 `json:"-"`

	// EmbeddingProvenanceID points at the upstream embedding computation.
	EmbeddingProvenanceID string `json:"embedding_provenance_id,omitempty"`

	// Confidence is the extractor's estimate, in [0,1].
	Confidence float64 `json:"confidence"`

	// SourceID identifies where the candidate was extracted from.
	SourceID string `json:"source_id,omitempty"`
}
