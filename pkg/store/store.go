// Package store defines the durable persistence interface of the
// consolidation engine. The store is the sole durable owner of memories and
// their revisions; both are written exclusively through [Store.Apply], which
// commits a whole ChangeSet atomically or not at all.
package store

import (
	"context"

	"github.com/papercomputeco/memd/pkg/memory"
)

// Store persists memories, revisions, and job records.
type Store interface {
	// GetMemory retrieves a memory by id. Returns NotFoundError if absent.
	GetMemory(ctx context.Context, id string) (*memory.Memory, error)

	// ListMemories returns all memories in a scope, superseded ones included
	// only when requested. Ordered by id for deterministic iteration.
	ListMemories(ctx context.Context, scopeKey string, includeSuperseded bool) ([]*memory.Memory, error)

	// History returns the full revision sequence of a memory, oldest first.
	History(ctx context.Context, memoryID string) ([]*memory.Revision, error)

	// GetJob retrieves the durable record of a consolidation job.
	// Returns NotFoundError if the job has never been recorded.
	GetJob(ctx context.Context, jobID string) (*memory.JobRecord, error)

	// Apply commits a ChangeSet atomically. It fails the whole batch with
	// AlreadyAppliedError when the job is already terminal (at-least-once
	// delivery makes re-processing normal), and with ConflictError when any
	// write's optimistic revision check fails.
	Apply(ctx context.Context, cs *ChangeSet) error

	// Close releases store resources.
	Close() error
}

// MemoryWrite is one memory mutation within a ChangeSet.
type MemoryWrite struct {
	// Memory is the full desired state after the write.
	Memory *memory.Memory

	// ExpectedRevisions is the revision_count observed when the memory was
	// read (0 for a new memory). Apply rejects the ChangeSet with
	// ConflictError if the stored count no longer matches — the optimistic
	// check that catches writes raced in under a lost lease.
	ExpectedRevisions int

	// Revisions are the new ledger entries, numbered contiguously from
	// ExpectedRevisions+1.
	Revisions []*memory.Revision
}

// ChangeSet is the atomic unit of consolidation output: every memory upsert
// and revision append produced by one job, plus the job's terminal record.
type ChangeSet struct {
	JobID    string
	ScopeKey string
	Writes   []*MemoryWrite

	// Job is the terminal job record written in the same transaction. The
	// recorded terminal status is what makes re-delivery idempotent.
	Job *memory.JobRecord
}
