package engine_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memd/pkg/engine"
	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
	storeinmemory "github.com/papercomputeco/memd/pkg/store/inmemory"
)

var _ = Describe("Ledger", func() {
	var (
		ctx    context.Context
		st     *storeinmemory.Driver
		ledger *engine.Ledger
		now    time.Time
	)

	scope := memory.NewScope(map[string]string{"user_id": "u1"})

	seed := func(jobID, memID string, revisions ...*memory.Revision) {
		m := &memory.Memory{
			ID:            memID,
			Scope:         scope,
			Fact:          revisions[len(revisions)-1].Fact,
			Confidence:    revisions[len(revisions)-1].Confidence,
			RevisionCount: len(revisions),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		cs := &store.ChangeSet{
			JobID:    jobID,
			ScopeKey: scope.Key(),
			Writes: []*store.MemoryWrite{{
				Memory:    m,
				Revisions: revisions,
			}},
			Job: &memory.JobRecord{
				ID:       jobID,
				ScopeKey: scope.Key(),
				Status:   memory.JobCompleted,
			},
		}
		Expect(st.Apply(ctx, cs)).To(Succeed())
	}

	rev := func(memID string, n int, fact string, conf float64) *memory.Revision {
		action := memory.ActionUpdated
		if n == 1 {
			action = memory.ActionCreated
		}
		return &memory.Revision{
			MemoryID:   memID,
			Number:     n,
			Action:     action,
			Fact:       fact,
			Confidence: conf,
			CreatedAt:  now,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = storeinmemory.NewDriver()
		ledger = engine.NewLedger(st)
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	Describe("History", func() {
		It("returns revisions oldest first with contiguous numbering", func() {
			seed("job-1", "01A",
				rev("01A", 1, "drinks coffee", 0.5),
				rev("01A", 2, "drinks coffee daily", 0.7),
				rev("01A", 3, "drinks coffee every morning", 0.8),
			)

			revs, err := ledger.History(ctx, "01A")
			Expect(err).NotTo(HaveOccurred())
			Expect(revs).To(HaveLen(3))
			for i, r := range revs {
				Expect(r.Number).To(Equal(i + 1))
			}
		})
	})

	Describe("ReconstructAt", func() {
		BeforeEach(func() {
			seed("job-1", "01A",
				rev("01A", 1, "drinks coffee", 0.5),
				rev("01A", 2, "drinks coffee daily", 0.7),
			)
		})

		It("returns the state at the requested revision", func() {
			r, err := ledger.ReconstructAt(ctx, "01A", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Fact).To(Equal("drinks coffee"))
			Expect(r.Confidence).To(Equal(0.5))
		})

		It("rejects out-of-range revision numbers", func() {
			_, err := ledger.ReconstructAt(ctx, "01A", 5)
			Expect(memory.IsValidation(err)).To(BeTrue())

			_, err = ledger.ReconstructAt(ctx, "01A", 0)
			Expect(memory.IsValidation(err)).To(BeTrue())
		})
	})

	Describe("RollbackTo", func() {
		BeforeEach(func() {
			seed("job-1", "01A",
				rev("01A", 1, "drinks coffee", 0.5),
				rev("01A", 2, "drinks tea", 0.9),
			)
		})

		It("restores an earlier state as a new forward revision", func() {
			r, err := ledger.RollbackTo(ctx, "01A", 1, "rollback-1", now.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Number).To(Equal(3))
			Expect(r.Action).To(Equal(memory.ActionUpdated))
			Expect(r.Fact).To(Equal("drinks coffee"))

			m, err := st.GetMemory(ctx, "01A")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Fact).To(Equal("drinks coffee"))
			Expect(m.Confidence).To(Equal(0.5))
			Expect(m.RevisionCount).To(Equal(3))

			revs, err := ledger.History(ctx, "01A")
			Expect(err).NotTo(HaveOccurred())
			Expect(revs).To(HaveLen(3))
		})

		It("refuses to roll back to the current revision", func() {
			_, err := ledger.RollbackTo(ctx, "01A", 2, "rollback-1", now)
			Expect(memory.IsValidation(err)).To(BeTrue())
		})
	})
})
