// Package engine implements the memory consolidation pipeline: duplicate
// detection, conflict resolution, merging, revision bookkeeping, and the
// orchestrator that drives one job end to end.
package engine

import "time"

// Default policy values. All of them are overridable via Params so tests can
// exercise varied policies deterministically.
const (
	DefaultDuplicateThreshold = 0.92
	DefaultConflictFloor      = 0.60
	DefaultTopK               = 10
	DefaultLeaseTTL           = 2 * time.Minute
	DefaultMaxAttempts        = 5
	DefaultBackoffBase        = 2 * time.Second
	DefaultBackoffCap         = 60 * time.Second
)

// Params is the explicit policy configuration of the engine. It is passed
// into the orchestrator at construction; nothing reads ambient global state.
type Params struct {
	// DuplicateThreshold is the similarity above which two facts are treated
	// as the same underlying memory.
	DuplicateThreshold float64

	// ConflictFloor is the minimum similarity for a memory to be considered
	// related at all. Scores between the floor and the duplicate threshold
	// fall in the conflict band.
	ConflictFloor float64

	// TopK is how many nearest neighbors duplicate detection requests.
	TopK int

	// LeaseTTL bounds how long a crashed worker can block a scope.
	LeaseTTL time.Duration

	// MaxAttempts bounds retries of transiently failing jobs.
	MaxAttempts int

	// BackoffBase and BackoffCap shape the exponential requeue backoff.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultParams returns the engine's default policy.
func DefaultParams() Params {
	return Params{
		DuplicateThreshold: DefaultDuplicateThreshold,
		ConflictFloor:      DefaultConflictFloor,
		TopK:               DefaultTopK,
		LeaseTTL:           DefaultLeaseTTL,
		MaxAttempts:        DefaultMaxAttempts,
		BackoffBase:        DefaultBackoffBase,
		BackoffCap:         DefaultBackoffCap,
	}
}

// withDefaults fills zero values with defaults.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.DuplicateThreshold == 0 {
		p.DuplicateThreshold = d.DuplicateThreshold
	}
	if p.ConflictFloor == 0 {
		p.ConflictFloor = d.ConflictFloor
	}
	if p.TopK == 0 {
		p.TopK = d.TopK
	}
	if p.LeaseTTL == 0 {
		p.LeaseTTL = d.LeaseTTL
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BackoffBase == 0 {
		p.BackoffBase = d.BackoffBase
	}
	if p.BackoffCap == 0 {
		p.BackoffCap = d.BackoffCap
	}
	return p
}

// Backoff returns the requeue delay for the given zero-based attempt:
// base doubled per attempt, capped.
func (p Params) Backoff(attempt int) time.Duration {
	delay := p.BackoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if delay > p.BackoffCap {
		return p.BackoffCap
	}
	return delay
}
