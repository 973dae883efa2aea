package memory

import "time"

// JobStatus is the lifecycle state of a consolidation job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ConsolidationJob is one queued batch of candidate facts for a single scope.
// Only the orchestrator transitions job state.
type ConsolidationJob struct {
	ID         string          `json:"job_id"`
	Scope      Scope           `json:"-"`
	Candidates []CandidateFact `json:"candidates"`

	Status       JobStatus `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// JobResult summarizes a terminal job.
type JobResult struct {
	JobID              string    `json:"job_id"`
	Status             JobStatus `json:"status"`
	MemoriesCreated    int       `json:"memories_created"`
	MemoriesUpdated    int       `json:"memories_updated"`
	MemoriesSuperseded int       `json:"memories_superseded"`
	Error              string    `json:"error,omitempty"`
}

// JobRecord is the durable view of a job kept by the store for idempotence
// and status queries.
type JobRecord struct {
	ID           string    `json:"job_id"`
	ScopeKey     string    `json:"scope_key"`
	Status       JobStatus `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	Result       JobResult `json:"result"`
	UpdatedAt    time.Time `json:"updated_at"`
}
