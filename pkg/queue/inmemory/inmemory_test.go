package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memd/pkg/queue"
	"github.com/papercomputeco/memd/pkg/queue/inmemory"
)

var _ = Describe("In-Memory Queue", func() {
	var (
		q   *inmemory.Queue
		ctx context.Context
	)

	BeforeEach(func() {
		q = inmemory.New(16)
		ctx = context.Background()
	})

	It("delivers enqueued jobs in order", func() {
		Expect(q.Enqueue(ctx, &queue.JobMessage{JobID: "a"})).To(Succeed())
		Expect(q.Enqueue(ctx, &queue.JobMessage{JobID: "b"})).To(Succeed())

		d1, err := q.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(d1.Message().JobID).To(Equal("a"))

		d2, err := q.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(d2.Message().JobID).To(Equal("b"))
	})

	It("returns ctx error when nothing arrives", func() {
		shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := q.Receive(shortCtx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("redelivers requeued jobs with an incremented attempt count", func() {
		Expect(q.Enqueue(ctx, &queue.JobMessage{JobID: "a", AttemptCount: 0})).To(Succeed())

		d, err := q.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Requeue(ctx, 10*time.Millisecond)).To(Succeed())

		recvCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		d2, err := q.Receive(recvCtx)
		Expect(err).NotTo(HaveOccurred())
		Expect(d2.Message().JobID).To(Equal("a"))
		Expect(d2.Message().AttemptCount).To(Equal(1))
	})

	It("captures dead-lettered jobs with their reason", func() {
		Expect(q.Enqueue(ctx, &queue.JobMessage{JobID: "bad"})).To(Succeed())

		d, err := q.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.DeadLetter(ctx, "validation: empty fact")).To(Succeed())

		dls := q.DeadLetters()
		Expect(dls).To(HaveLen(1))
		Expect(dls[0].Message.JobID).To(Equal("bad"))
		Expect(dls[0].Reason).To(ContainSubstring("empty fact"))
	})

	It("records published results", func() {
		Expect(q.PublishResult(ctx, &queue.ResultMessage{JobID: "a"})).To(Succeed())
		Expect(q.Results()).To(HaveLen(1))
	})

	It("rejects nil results", func() {
		Expect(q.PublishResult(ctx, nil)).To(MatchError(queue.ErrNilResult))
	})
})
