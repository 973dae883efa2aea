package sqlite_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
	"github.com/papercomputeco/memd/pkg/store/sqlite"
)

var _ = Describe("SQLite Store", func() {
	var (
		d     *sqlite.Driver
		ctx   context.Context
		scope memory.Scope
		now   time.Time
	)

	BeforeEach(func() {
		var err error
		d, err = sqlite.NewDriver(":memory:")
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
		scope = memory.NewScope(map[string]string{"user": "u1", "project": "p1"})
		now = time.Now().UTC().Truncate(time.Second)
	})

	AfterEach(func() {
		Expect(d.Close()).To(Succeed())
	})

	apply := func(jobID, memID, fact string, expected int, revs ...*memory.Revision) error {
		return d.Apply(ctx, &store.ChangeSet{
			JobID:    jobID,
			ScopeKey: scope.Key(),
			Writes: []*store.MemoryWrite{
				{
					Memory: &memory.Memory{
						ID:            memID,
						Scope:         scope,
						Fact:          fact,
						Topic:         "location",
						Confidence:    0.8,
						RevisionCount: expected + len(revs),
						CreatedAt:     now,
						UpdatedAt:     now,
					},
					ExpectedRevisions: expected,
					Revisions:         revs,
				},
			},
			Job: &memory.JobRecord{
				ID:        jobID,
				ScopeKey:  scope.Key(),
				Status:    memory.JobCompleted,
				UpdatedAt: now,
			},
		})
	}

	rev := func(memID string, n int, action memory.RevisionAction, fact string) *memory.Revision {
		return &memory.Revision{
			MemoryID:     memID,
			Number:       n,
			Action:       action,
			Fact:         fact,
			Confidence:   0.8,
			SourceJobID:  "job-1",
			CandidateIDs: []string{"c1"},
			CreatedAt:    now,
		}
	}

	It("round-trips a memory with its scope and revisions", func() {
		Expect(apply("job-1", "01A", "lives in Boston", 0,
			rev("01A", 1, memory.ActionCreated, "lives in Boston"))).To(Succeed())

		got, err := d.GetMemory(ctx, "01A")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Fact).To(Equal("lives in Boston"))
		Expect(got.Scope.Key()).To(Equal(scope.Key()))
		Expect(got.RevisionCount).To(Equal(1))

		history, err := d.History(ctx, "01A")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(1))
		Expect(history[0].CandidateIDs).To(Equal([]string{"c1"}))
		Expect(history[0].SourceJobID).To(Equal("job-1"))
	})

	It("appends revisions across jobs without gaps", func() {
		Expect(apply("job-1", "01A", "lives in Boston", 0,
			rev("01A", 1, memory.ActionCreated, "lives in Boston"))).To(Succeed())
		Expect(apply("job-2", "01A", "lives in Boston, MA", 1,
			rev("01A", 2, memory.ActionUpdated, "lives in Boston, MA"))).To(Succeed())

		history, err := d.History(ctx, "01A")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(2))
		Expect(history[0].Number).To(Equal(1))
		Expect(history[1].Number).To(Equal(2))

		got, err := d.GetMemory(ctx, "01A")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.RevisionCount).To(Equal(2))
		Expect(got.Fact).To(Equal(history[1].Fact))
	})

	It("refuses to re-apply a terminal job", func() {
		Expect(apply("job-1", "01A", "lives in Boston", 0,
			rev("01A", 1, memory.ActionCreated, "lives in Boston"))).To(Succeed())

		err := apply("job-1", "01A", "lives in Boston", 1,
			rev("01A", 2, memory.ActionUpdated, "lives in Boston"))
		Expect(err).To(BeAssignableToTypeOf(store.AlreadyAppliedError{}))
	})

	It("detects conflicting concurrent writes via the revision count", func() {
		Expect(apply("job-1", "01A", "lives in Boston", 0,
			rev("01A", 1, memory.ActionCreated, "lives in Boston"))).To(Succeed())

		err := apply("job-2", "01A", "lives in NYC", 0,
			rev("01A", 1, memory.ActionCreated, "lives in NYC"))
		Expect(err).To(BeAssignableToTypeOf(store.ConflictError{}))
	})

	It("returns NotFoundError for unknown memories and jobs", func() {
		_, err := d.GetMemory(ctx, "nope")
		Expect(err).To(BeAssignableToTypeOf(store.NotFoundError{}))

		_, err = d.GetJob(ctx, "nope")
		Expect(err).To(BeAssignableToTypeOf(store.NotFoundError{}))
	})
})
