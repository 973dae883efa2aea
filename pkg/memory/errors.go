package memory

import (
	"errors"
	"fmt"
)

// The engine's error taxonomy. Expected branching (duplicates,
// contradictions) is data, not errors; these classes cover infrastructure
// failures and broken invariants, and only the orchestrator applies
// retry/dead-letter policy based on them.

// TransientError marks a failure worth retrying with backoff: store or index
// unavailable, lock contention, lease race.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// ValidationError marks malformed input: missing scope key, empty fact,
// confidence out of range. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvariantError marks a broken consistency guarantee (e.g. a revision gap
// detected pre-commit). Terminal and alarmed: it indicates a bug or data
// corruption, not a transient condition.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Reason }

// Invariantf builds an InvariantError from a format string.
func Invariantf(format string, args ...any) error {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsValidation reports whether err is a rejection of malformed input.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsInvariant reports whether err is a broken consistency guarantee.
func IsInvariant(err error) bool {
	var i *InvariantError
	return errors.As(err, &i)
}
