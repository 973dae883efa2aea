package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
)

// Ledger reads and verifies the append-only revision history of memories.
// Writes flow through ChangeSets staged by the orchestrator; the ledger is
// the read side.
type Ledger struct {
	store store.Store
}

// NewLedger returns a ledger over the given store.
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// History returns every revision of a memory in order.
func (l *Ledger) History(ctx context.Context, memoryID string) ([]*memory.Revision, error) {
	revs, err := l.store.History(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if err := verifyContiguous(memoryID, revs); err != nil {
		return nil, err
	}
	return revs, nil
}

// ReconstructAt returns the memory's state as of the given revision number.
func (l *Ledger) ReconstructAt(ctx context.Context, memoryID string, number int) (*memory.Revision, error) {
	revs, err := l.History(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if number < 1 || number > len(revs) {
		return nil, memory.Validationf("revision %d of memory %s does not exist, history has %d revisions", number, memoryID, len(revs))
	}
	return revs[number-1], nil
}

// RollbackTo restores a memory to the state it had at the given revision
// number. The restore is written as a new forward revision so the history
// stays append-only and gapless.
func (l *Ledger) RollbackTo(ctx context.Context, memoryID string, number int, jobID string, now time.Time) (*memory.Revision, error) {
	m, err := l.store.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	target, err := l.ReconstructAt(ctx, memoryID, number)
	if err != nil {
		return nil, err
	}
	if target.Number == m.RevisionCount {
		return nil, memory.Validationf("memory %s is already at revision %d", memoryID, number)
	}

	expected := m.RevisionCount
	m.Fact = target.Fact
	m.Confidence = target.Confidence
	m.Superseded = false
	m.UpdatedAt = now

	rev := &memory.Revision{
		MemoryID:    memoryID,
		Number:      expected + 1,
		Action:      memory.ActionUpdated,
		Fact:        m.Fact,
		Confidence:  m.Confidence,
		SourceJobID: jobID,
		CreatedAt:   now,
	}
	m.RevisionCount = rev.Number

	cs := &store.ChangeSet{
		JobID:    jobID,
		ScopeKey: m.Scope.Key(),
		Writes: []*store.MemoryWrite{{
			Memory:            m,
			ExpectedRevisions: expected,
			Revisions:         []*memory.Revision{rev},
		}},
		Job: &memory.JobRecord{
			ID:       jobID,
			ScopeKey: m.Scope.Key(),
			Status:   memory.JobCompleted,
			Result: memory.JobResult{
				JobID:           jobID,
				Status:          memory.JobCompleted,
				MemoriesUpdated: 1,
			},
			UpdatedAt: now,
		},
	}
	if err := l.store.Apply(ctx, cs); err != nil {
		return nil, fmt.Errorf("applying rollback of memory %s: %w", memoryID, err)
	}
	return rev, nil
}

// verifyContiguous checks the gaplessness invariant: revisions of a memory
// number 1..n with no holes.
func verifyContiguous(memoryID string, revs []*memory.Revision) error {
	for i, rev := range revs {
		if rev.Number != i+1 {
			return memory.Invariantf("memory %s revision history has a gap: position %d holds revision %d", memoryID, i+1, rev.Number)
		}
	}
	return nil
}
