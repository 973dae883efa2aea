package engine

import (
	"sort"
	"time"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
)

// workingSet is the job-local view of a scope. Candidates within one job are
// processed sequentially, and each must observe the mutations staged by the
// candidates before it, so the set overlays staged writes on top of the
// memories loaded from the store. Nothing here touches durable state; the
// orchestrator commits the accumulated writes in a single ChangeSet.
type workingSet struct {
	jobID string

	// memories is the current live view keyed by memory id, including
	// memories created or mutated earlier in this job.
	memories map[string]*memory.Memory

	// embeddings holds vectors for memories whose embedding was produced or
	// replaced during this job. The durable index does not see them until
	// after commit, so duplicate detection consults this map directly.
	embeddings map[string][]float32

	// writes are the staged mutations in first-touch order.
	writes map[string]*store.MemoryWrite
	order  []string

	// removed lists memory ids whose index entries must be dropped after
	// commit (superseded by merge or contradiction).
	removed []string
}

func newWorkingSet(jobID string, live []*memory.Memory) *workingSet {
	ws := &workingSet{
		jobID:      jobID,
		memories:   make(map[string]*memory.Memory, len(live)),
		embeddings: make(map[string][]float32),
		writes:     make(map[string]*store.MemoryWrite),
	}
	for _, m := range live {
		ws.memories[m.ID] = m
	}
	return ws
}

// get returns the current view of a memory, or nil.
func (ws *workingSet) get(id string) *memory.Memory {
	return ws.memories[id]
}

// live returns the non-superseded memories in the set.
func (ws *workingSet) live(now time.Time) []*memory.Memory {
	out := make([]*memory.Memory, 0, len(ws.memories))
	for _, m := range ws.memories {
		if m.Live(now) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// writeFor returns the staged write for a memory, creating it on first
// touch. ExpectedRevisions captures the revision count observed before this
// job mutated the memory, which the store checks at commit.
func (ws *workingSet) writeFor(m *memory.Memory) *store.MemoryWrite {
	if w, ok := ws.writes[m.ID]; ok {
		return w
	}
	w := &store.MemoryWrite{
		Memory:            m,
		ExpectedRevisions: m.RevisionCount,
	}
	ws.writes[m.ID] = w
	ws.order = append(ws.order, m.ID)
	ws.memories[m.ID] = m
	return w
}

// stage records a revision on a memory's write and keeps the memory's
// revision count in step with the staged ledger.
func (ws *workingSet) stage(m *memory.Memory, action memory.RevisionAction, candidateIDs []string, sourceJobID string, at time.Time) *memory.Revision {
	w := ws.writeFor(m)
	rev := &memory.Revision{
		MemoryID:     m.ID,
		Number:       w.ExpectedRevisions + len(w.Revisions) + 1,
		Action:       action,
		Fact:         m.Fact,
		Confidence:   m.Confidence,
		SourceJobID:  sourceJobID,
		CandidateIDs: append([]string(nil), candidateIDs...),
		CreatedAt:    at,
	}
	w.Revisions = append(w.Revisions, rev)
	m.RevisionCount = rev.Number
	m.UpdatedAt = at
	return rev
}

// markRemoved schedules a memory's index entry for deletion after commit.
func (ws *workingSet) markRemoved(id string) {
	ws.removed = append(ws.removed, id)
	delete(ws.embeddings, id)
}

// setEmbedding records a job-local embedding for a memory.
func (ws *workingSet) setEmbedding(id string, vec []float32) {
	ws.embeddings[id] = vec
}

// changeSet assembles the staged writes into the atomic commit unit.
func (ws *workingSet) changeSet(scopeKey string, job *memory.JobRecord) *store.ChangeSet {
	cs := &store.ChangeSet{
		JobID:    ws.jobID,
		ScopeKey: scopeKey,
		Job:      job,
	}
	for _, id := range ws.order {
		cs.Writes = append(cs.Writes, ws.writes[id])
	}
	return cs
}

// dirty reports whether any write was staged.
func (ws *workingSet) dirty() bool {
	return len(ws.order) > 0
}
