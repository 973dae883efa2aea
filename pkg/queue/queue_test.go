package queue_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/queue"
)

var _ = Describe("JobMessage", func() {
	It("converts into a domain job with a canonical scope", func() {
		msg := &queue.JobMessage{
			SchemaVersion: queue.SchemaVersionV1,
			JobID:         "job-1",
			Scope:         map[string]string{"user": "u1", "project": "p1"},
			Candidates: []queue.CandidateMessage{
				{ID: "c1", Fact: "lives in Boston", Topic: "location", Confidence: 0.7},
			},
			AttemptCount: 2,
			EnqueuedAt:   time.Now(),
		}

		job := msg.ToJob()
		Expect(job.ID).To(Equal("job-1"))
		Expect(job.Scope.Key()).To(Equal("project=p1;user=u1"))
		Expect(job.Status).To(Equal(memory.JobPending))
		Expect(job.AttemptCount).To(Equal(2))
		Expect(job.Candidates).To(HaveLen(1))
		Expect(job.Candidates[0].ID).To(Equal("c1"))
	})

	It("assigns ids to candidates that arrive without one", func() {
		msg := &queue.JobMessage{
			JobID:      "job-1",
			Scope:      map[string]string{"user": "u1"},
			Candidates: []queue.CandidateMessage{{Fact: "prefers tea", Confidence: 0.5}},
		}

		job := msg.ToJob()
		Expect(job.Candidates[0].ID).NotTo(BeEmpty())
	})
})

var _ = Describe("NewResultMessage", func() {
	It("copies the job scope and result counts", func() {
		job := &memory.ConsolidationJob{
			ID:    "job-1",
			Scope: memory.NewScope(map[string]string{"user": "u1"}),
		}
		result := &memory.JobResult{
			JobID:           "job-1",
			Status:          memory.JobCompleted,
			MemoriesCreated: 2,
			MemoriesUpdated: 1,
		}

		msg := queue.NewResultMessage(job, result)
		Expect(msg.JobID).To(Equal("job-1"))
		Expect(msg.Status).To(Equal(memory.JobCompleted))
		Expect(msg.Scope).To(HaveKeyWithValue("user", "u1"))
		Expect(msg.MemoriesCreated).To(Equal(2))
		Expect(msg.MemoriesUpdated).To(Equal(1))
		Expect(msg.EmittedAt).NotTo(BeZero())
	})
})
