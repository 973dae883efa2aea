// Package inmemory provides an in-memory store driver for tests and
// local development.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
)

// Driver implements store.Store with process-local maps. Safe for
// concurrent use.
type Driver struct {
	mu        sync.RWMutex
	memories  map[string]*memory.Memory
	revisions map[string][]*memory.Revision
	jobs      map[string]*memory.JobRecord
}

// NewDriver creates an empty in-memory store.
func NewDriver() *Driver {
	return &Driver{
		memories:  make(map[string]*memory.Memory),
		revisions: make(map[string][]*memory.Revision),
		jobs:      make(map[string]*memory.JobRecord),
	}
}

// GetMemory retrieves a memory by id.
func (d *Driver) GetMemory(_ context.Context, id string) (*memory.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.memories[id]
	if !ok {
		return nil, store.NotFoundError{Kind: "memory", ID: id}
	}
	cp := *m
	return &cp, nil
}

// ListMemories returns all memories in a scope ordered by id.
func (d *Driver) ListMemories(_ context.Context, scopeKey string, includeSuperseded bool) ([]*memory.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*memory.Memory
	for _, m := range d.memories {
		if m.Scope.Key() != scopeKey {
			continue
		}
		if m.Superseded && !includeSuperseded {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// History returns a memory's revisions oldest first.
func (d *Driver) History(_ context.Context, memoryID string) ([]*memory.Revision, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	revs := d.revisions[memoryID]
	out := make([]*memory.Revision, len(revs))
	for i, r := range revs {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// GetJob retrieves a job record by id.
func (d *Driver) GetJob(_ context.Context, jobID string) (*memory.JobRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return nil, store.NotFoundError{Kind: "job", ID: jobID}
	}
	cp := *rec
	return &cp, nil
}

// Apply commits a ChangeSet under a single lock acquisition, mirroring the
// SQL drivers' transaction semantics: all checks pass or nothing is written.
func (d *Driver) Apply(_ context.Context, cs *store.ChangeSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.jobs[cs.JobID]; ok && rec.Status.Terminal() {
		return store.AlreadyAppliedError{JobID: cs.JobID, Status: rec.Status}
	}

	// Validate every write before touching state.
	for _, w := range cs.Writes {
		current := 0
		if existing, ok := d.memories[w.Memory.ID]; ok {
			current = existing.RevisionCount
		}
		if current != w.ExpectedRevisions {
			return store.ConflictError{MemoryID: w.Memory.ID, Expected: w.ExpectedRevisions, Actual: current}
		}
		for i, rev := range w.Revisions {
			if want := w.ExpectedRevisions + i + 1; rev.Number != want {
				return memory.Invariantf("memory %s revision %d out of sequence, want %d", w.Memory.ID, rev.Number, want)
			}
		}
	}

	for _, w := range cs.Writes {
		cp := *w.Memory
		d.memories[cp.ID] = &cp
		for _, rev := range w.Revisions {
			rcp := *rev
			d.revisions[rev.MemoryID] = append(d.revisions[rev.MemoryID], &rcp)
		}
	}

	rec := *cs.Job
	d.jobs[rec.ID] = &rec
	return nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}
