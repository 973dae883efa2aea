// Package inmemory provides a channel-backed queue transport for tests and
// single-process deployments.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/memd/pkg/queue"
)

// Queue is a process-local jobs queue plus result/dead-letter capture. One
// Queue serves as both the Consumer and the Publisher side.
type Queue struct {
	jobs chan *queue.JobMessage

	mu          sync.Mutex
	results     []*queue.ResultMessage
	deadLetters []DeadLetter
	closed      bool
}

// DeadLetter captures a rejected job with its reason.
type DeadLetter struct {
	Message *queue.JobMessage
	Reason  string
}

// New creates an in-memory queue with the given buffer capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{jobs: make(chan *queue.JobMessage, capacity)}
}

// Enqueue submits a job message for consumption.
func (q *Queue) Enqueue(ctx context.Context, msg *queue.JobMessage) error {
	select {
	case q.jobs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a job is available or ctx is done.
func (q *Queue) Receive(ctx context.Context) (queue.Delivery, error) {
	select {
	case msg, ok := <-q.jobs:
		if !ok {
			return nil, queue.ErrClosed
		}
		return &delivery{queue: q, payload: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishResult records a terminal result.
func (q *Queue) PublishResult(_ context.Context, result *queue.ResultMessage) error {
	if result == nil {
		return queue.ErrNilResult
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, result)
	return nil
}

// Results returns all published results so far.
func (q *Queue) Results() []*queue.ResultMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*queue.ResultMessage, len(q.results))
	copy(out, q.results)
	return out
}

// DeadLetters returns all dead-lettered jobs so far.
func (q *Queue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

// Close closes the jobs channel. Pending messages stay consumable.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}

type delivery struct {
	queue   *Queue
	payload *queue.JobMessage
}

func (d *delivery) Message() *queue.JobMessage {
	return d.payload
}

func (d *delivery) Ack(_ context.Context) error {
	return nil
}

// Requeue re-enqueues after the delay on a background timer so the worker is
// free to pick up other jobs meanwhile.
func (d *delivery) Requeue(ctx context.Context, delay time.Duration) error {
	requeued := *d.payload
	requeued.AttemptCount++
	requeued.NotBefore = time.Now().Add(delay)

	if delay <= 0 {
		return d.queue.Enqueue(ctx, &requeued)
	}

	timer := time.AfterFunc(delay, func() {
		d.queue.mu.Lock()
		closed := d.queue.closed
		d.queue.mu.Unlock()
		if closed {
			return
		}
		select {
		case d.queue.jobs <- &requeued:
		default:
			// Queue full; at-least-once still holds upstream.
		}
	})
	_ = timer
	return nil
}

func (d *delivery) DeadLetter(_ context.Context, reason string) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.deadLetters = append(d.queue.deadLetters, DeadLetter{Message: d.payload, Reason: reason})
	return nil
}
