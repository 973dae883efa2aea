// Package queue defines the transport-neutral message payloads and the
// consumer/publisher interfaces of the consolidation engine. Delivery is
// at-least-once: handlers must be idempotent with respect to job_id, which
// the store's commit step enforces (see store.Store.Apply).
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/memd/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the message payload schema.
	SchemaVersionV1 = 1
)

// CandidateMessage is the wire form of one extracted candidate fact.
type CandidateMessage struct {
	ID                    string    `json:"id,omitempty"`
	Fact                  string    `json:"fact"`
	Topic                 string    `json:"topic"`
	Embedding             []float32 `json:"embedding,omitempty"`
	EmbeddingProvenanceID string    `json:"embedding_provenance_id,omitempty"`
	Confidence            float64   `json:"confidence"`
	SourceID              string    `json:"source_id,omitempty"`
}

// JobMessage is a consolidation request: one scope and a batch of candidates.
type JobMessage struct {
	SchemaVersion int                `json:"schema_version"`
	JobID         string             `json:"job_id"`
	Scope         map[string]string  `json:"scope"`
	Candidates    []CandidateMessage `json:"candidates"`
	AttemptCount  int                `json:"attempt_count,omitempty"`
	EnqueuedAt    time.Time          `json:"enqueued_at"`

	// NotBefore delays processing of a requeued message; zero means
	// immediately eligible.
	NotBefore time.Time `json:"not_before,omitempty"`
}

// ToJob converts the wire payload into the domain job. Candidates without an
// id get one assigned so provenance stays traceable.
func (m *JobMessage) ToJob() *memory.ConsolidationJob {
	candidates := make([]memory.CandidateFact, len(m.Candidates))
	for i, c := range m.Candidates {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		candidates[i] = memory.CandidateFact{
			ID:                    id,
			Fact:                  c.Fact,
			Topic:                 c.Topic,
			Embedding:             c.Embedding,
			EmbeddingProvenanceID: c.EmbeddingProvenanceID,
			Confidence:            c.Confidence,
			SourceID:              c.SourceID,
		}
	}
	return &memory.ConsolidationJob{
		ID:           m.JobID,
		Scope:        memory.NewScope(m.Scope),
		Candidates:   candidates,
		Status:       memory.JobPending,
		AttemptCount: m.AttemptCount,
		EnqueuedAt:   m.EnqueuedAt,
	}
}

// ResultMessage is published when a job reaches a terminal state.
type ResultMessage struct {
	SchemaVersion      int               `json:"schema_version"`
	JobID              string            `json:"job_id"`
	Scope              map[string]string `json:"scope"`
	Status             memory.JobStatus  `json:"status"`
	MemoriesCreated    int               `json:"memories_created"`
	MemoriesUpdated    int               `json:"memories_updated"`
	MemoriesSuperseded int               `json:"memories_superseded"`
	Error              string            `json:"error,omitempty"`
	EmittedAt          time.Time         `json:"emitted_at"`
}

// NewResultMessage builds the terminal result payload for a job.
func NewResultMessage(job *memory.ConsolidationJob, result *memory.JobResult) *ResultMessage {
	return &ResultMessage{
		SchemaVersion:      SchemaVersionV1,
		JobID:              job.ID,
		Scope:              job.Scope.Map(),
		Status:             result.Status,
		MemoriesCreated:    result.MemoriesCreated,
		MemoriesUpdated:    result.MemoriesUpdated,
		MemoriesSuperseded: result.MemoriesSuperseded,
		Error:              result.Error,
		EmittedAt:          time.Now().UTC(),
	}
}

// Delivery is one received job message with its acknowledgement controls.
type Delivery interface {
	// Message returns the received payload.
	Message() *JobMessage

	// Ack marks the delivery as done; it is not redelivered.
	Ack(ctx context.Context) error

	// Requeue schedules redelivery after the given delay with the attempt
	// count incremented, and acknowledges the current delivery.
	Requeue(ctx context.Context, delay time.Duration) error

	// DeadLetter routes the message to the dead-letter destination with a
	// diagnostic reason, and acknowledges the current delivery.
	DeadLetter(ctx context.Context, reason string) error
}

// Consumer receives consolidation job messages.
type Consumer interface {
	// Receive blocks until a delivery is available or ctx is done.
	Receive(ctx context.Context) (Delivery, error)

	// Close stops the consumer.
	Close() error
}

// Publisher publishes terminal job results.
type Publisher interface {
	PublishResult(ctx context.Context, result *ResultMessage) error
	Close() error
}
