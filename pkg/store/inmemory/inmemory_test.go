package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
	"github.com/papercomputeco/memd/pkg/store/inmemory"
)

func changeSetFor(jobID string, scope memory.Scope, m *memory.Memory, expected int, revs ...*memory.Revision) *store.ChangeSet {
	return &store.ChangeSet{
		JobID:    jobID,
		ScopeKey: scope.Key(),
		Writes: []*store.MemoryWrite{
			{Memory: m, ExpectedRevisions: expected, Revisions: revs},
		},
		Job: &memory.JobRecord{
			ID:        jobID,
			ScopeKey:  scope.Key(),
			Status:    memory.JobCompleted,
			UpdatedAt: time.Now(),
		},
	}
}

var _ = Describe("In-Memory Store", func() {
	var (
		d     *inmemory.Driver
		ctx   context.Context
		scope memory.Scope
		now   time.Time
	)

	BeforeEach(func() {
		d = inmemory.NewDriver()
		ctx = context.Background()
		scope = memory.NewScope(map[string]string{"user": "u1"})
		now = time.Now().UTC()
	})

	newMemory := func(id, fact string, revCount int) *memory.Memory {
		return &memory.Memory{
			ID:            id,
			Scope:         scope,
			Fact:          fact,
			Topic:         "location",
			Confidence:    0.7,
			RevisionCount: revCount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	newRevision := func(memID string, n int, action memory.RevisionAction, fact string) *memory.Revision {
		return &memory.Revision{
			MemoryID:  memID,
			Number:    n,
			Action:    action,
			Fact:      fact,
			CreatedAt: now,
		}
	}

	Describe("Apply", func() {
		It("creates a memory with its first revision", func() {
			m := newMemory("01A", "lives in Boston", 1)
			rev := newRevision("01A", 1, memory.ActionCreated, "lives in Boston")

			Expect(d.Apply(ctx, changeSetFor("job-1", scope, m, 0, rev))).To(Succeed())

			got, err := d.GetMemory(ctx, "01A")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Fact).To(Equal("lives in Boston"))
			Expect(got.RevisionCount).To(Equal(1))

			history, err := d.History(ctx, "01A")
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(1))
			Expect(history[0].Action).To(Equal(memory.ActionCreated))
		})

		It("rejects a second application of a terminal job", func() {
			m := newMemory("01A", "lives in Boston", 1)
			rev := newRevision("01A", 1, memory.ActionCreated, "lives in Boston")
			cs := changeSetFor("job-1", scope, m, 0, rev)

			Expect(d.Apply(ctx, cs)).To(Succeed())

			err := d.Apply(ctx, cs)
			var already store.AlreadyAppliedError
			Expect(err).To(BeAssignableToTypeOf(already))

			// No double-applied revisions.
			history, _ := d.History(ctx, "01A")
			Expect(history).To(HaveLen(1))
		})

		It("rejects writes whose optimistic revision check fails", func() {
			first := newMemory("01A", "lives in Boston", 1)
			Expect(d.Apply(ctx, changeSetFor("job-1", scope, first, 0,
				newRevision("01A", 1, memory.ActionCreated, "lives in Boston")))).To(Succeed())

			// A stale writer read the memory before job-1 committed.
			stale := newMemory("01A", "lives in NYC", 1)
			err := d.Apply(ctx, changeSetFor("job-2", scope, stale, 0,
				newRevision("01A", 1, memory.ActionCreated, "lives in NYC")))

			var conflict store.ConflictError
			Expect(err).To(BeAssignableToTypeOf(conflict))
		})

		It("rejects revision sequences with gaps", func() {
			m := newMemory("01A", "lives in Boston", 2)
			err := d.Apply(ctx, changeSetFor("job-1", scope, m, 0,
				newRevision("01A", 1, memory.ActionCreated, "lives in Boston"),
				newRevision("01A", 3, memory.ActionUpdated, "lives in Boston")))

			Expect(memory.IsInvariant(err)).To(BeTrue())
		})

		It("writes nothing when any write in the batch fails", func() {
			good := newMemory("01A", "lives in Boston", 1)
			bad := newMemory("01B", "prefers tea", 1)

			cs := &store.ChangeSet{
				JobID:    "job-1",
				ScopeKey: scope.Key(),
				Writes: []*store.MemoryWrite{
					{Memory: good, ExpectedRevisions: 0,
						Revisions: []*memory.Revision{newRevision("01A", 1, memory.ActionCreated, "lives in Boston")}},
					{Memory: bad, ExpectedRevisions: 5, // wrong: nothing stored yet
						Revisions: []*memory.Revision{newRevision("01B", 6, memory.ActionCreated, "prefers tea")}},
				},
				Job: &memory.JobRecord{ID: "job-1", ScopeKey: scope.Key(), Status: memory.JobCompleted, UpdatedAt: now},
			}

			Expect(d.Apply(ctx, cs)).NotTo(Succeed())

			_, err := d.GetMemory(ctx, "01A")
			Expect(err).To(BeAssignableToTypeOf(store.NotFoundError{}))
			_, err = d.GetJob(ctx, "job-1")
			Expect(err).To(BeAssignableToTypeOf(store.NotFoundError{}))
		})
	})

	Describe("ListMemories", func() {
		It("filters superseded memories unless asked for them", func() {
			live := newMemory("01A", "prefers coffee", 1)
			lost := newMemory("01B", "prefers tea", 1)
			lost.Superseded = true

			cs := &store.ChangeSet{
				JobID:    "job-1",
				ScopeKey: scope.Key(),
				Writes: []*store.MemoryWrite{
					{Memory: live, ExpectedRevisions: 0,
						Revisions: []*memory.Revision{newRevision("01A", 1, memory.ActionCreated, "prefers coffee")}},
					{Memory: lost, ExpectedRevisions: 0,
						Revisions: []*memory.Revision{newRevision("01B", 1, memory.ActionCreated, "prefers tea")}},
				},
				Job: &memory.JobRecord{ID: "job-1", ScopeKey: scope.Key(), Status: memory.JobCompleted, UpdatedAt: now},
			}
			Expect(d.Apply(ctx, cs)).To(Succeed())

			liveOnly, err := d.ListMemories(ctx, scope.Key(), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(liveOnly).To(HaveLen(1))
			Expect(liveOnly[0].ID).To(Equal("01A"))

			all, err := d.ListMemories(ctx, scope.Key(), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
		})

		It("isolates scopes", func() {
			other := memory.NewScope(map[string]string{"user": "u2"})
			m := newMemory("01A", "lives in Boston", 1)
			Expect(d.Apply(ctx, changeSetFor("job-1", scope, m, 0,
				newRevision("01A", 1, memory.ActionCreated, "lives in Boston")))).To(Succeed())

			empty, err := d.ListMemories(ctx, other.Key(), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(empty).To(BeEmpty())
		})
	})

	Describe("GetJob", func() {
		It("returns the recorded terminal summary", func() {
			m := newMemory("01A", "lives in Boston", 1)
			cs := changeSetFor("job-1", scope, m, 0,
				newRevision("01A", 1, memory.ActionCreated, "lives in Boston"))
			cs.Job.Result = memory.JobResult{MemoriesCreated: 1}
			Expect(d.Apply(ctx, cs)).To(Succeed())

			rec, err := d.GetJob(ctx, "job-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(memory.JobCompleted))
			Expect(rec.Result.MemoriesCreated).To(Equal(1))
		})
	})
})
