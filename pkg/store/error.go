package store

import (
	"fmt"

	"github.com/papercomputeco/memd/pkg/memory"
)

// NotFoundError is returned when a memory or job doesn't exist in the store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return e.Kind + " not found: " + e.ID
}

// ConflictError is returned by Apply when an optimistic revision check
// fails: the stored revision_count differs from what the ChangeSet expected.
type ConflictError struct {
	MemoryID string
	Expected int
	Actual   int
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("write conflict on memory %s: expected revision_count %d, found %d",
		e.MemoryID, e.Expected, e.Actual)
}

// AlreadyAppliedError is returned by Apply when the job already has a
// terminal status recorded. The caller treats this as success of a prior
// delivery, not a failure.
type AlreadyAppliedError struct {
	JobID  string
	Status memory.JobStatus
}

func (e AlreadyAppliedError) Error() string {
	return fmt.Sprintf("job %s already applied with status %s", e.JobID, e.Status)
}
