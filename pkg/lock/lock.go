// Package lock provides the scope lock manager: at most one in-flight
// consolidation per canonical scope key at a time. Leases carry a fencing
// token that strictly increases per scope key, so a worker that lost its
// lease to expiry can detect the loss and abort its commit instead of
// writing with stale ownership.
package lock

import (
	"errors"
	"time"
)

// ErrBusy is returned by Acquire when the scope is already held. Acquire is
// non-blocking; callers requeue the job with backoff rather than wait.
var ErrBusy = errors.New("scope lock busy")

// ErrExpired is returned when a lease's TTL has lapsed.
var ErrExpired = errors.New("lease expired")

// ErrStale is returned when a lease's fencing token is no longer current —
// another holder has acquired the scope since.
var ErrStale = errors.New("stale lease")

// Lease is a time-bounded exclusive claim on a scope.
type Lease struct {
	// ScopeKey is the canonical scope key the lease covers.
	ScopeKey string

	// Token is the fencing token: strictly increasing per scope key across
	// acquisitions.
	Token uint64

	// ExpiresAt is when the lease lapses unless renewed.
	ExpiresAt time.Time
}

// Manager hands out and tracks scope leases.
type Manager interface {
	// Acquire claims the scope for ttl. Returns ErrBusy immediately when the
	// scope is held by an unexpired lease.
	Acquire(scopeKey string, ttl time.Duration) (*Lease, error)

	// Renew extends a held lease by ttl. Returns ErrExpired if it lapsed, or
	// ErrStale if another holder has since acquired the scope.
	Renew(lease *Lease, ttl time.Duration) error

	// Release gives up the lease. Releasing an expired or stale lease is not
	// an error; the scope has already moved on.
	Release(lease *Lease)

	// Validate checks that the lease is still the current, unexpired holder.
	// Called immediately before commit to fence out stale writers.
	Validate(lease *Lease) error
}
