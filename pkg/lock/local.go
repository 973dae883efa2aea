package lock

import (
	"sync"
	"time"
)

// LocalManager implements Manager for a single-process worker pool. All
// workers share one LocalManager, which is what gives per-scope
// serializability across the pool.
type LocalManager struct {
	mu    sync.Mutex
	held  map[string]*holder
	clock func() time.Time
}

type holder struct {
	token     uint64
	expiresAt time.Time
}

// NewLocalManager creates an empty lock manager.
func NewLocalManager() *LocalManager {
	return &LocalManager{
		held:  make(map[string]*holder),
		clock: time.Now,
	}
}

// NewLocalManagerWithClock creates a manager with an injectable clock so
// tests can drive lease expiry deterministically.
func NewLocalManagerWithClock(clock func() time.Time) *LocalManager {
	return &LocalManager{
		held:  make(map[string]*holder),
		clock: clock,
	}
}

// Acquire claims the scope, taking over expired leases.
func (m *LocalManager) Acquire(scopeKey string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if h, ok := m.held[scopeKey]; ok && h.expiresAt.After(now) {
		return nil, ErrBusy
	}

	// The token keeps increasing across takeovers of an expired lease, so
	// the previous holder's token can never validate again.
	var token uint64 = 1
	if h, ok := m.held[scopeKey]; ok {
		token = h.token + 1
	}

	expires := now.Add(ttl)
	m.held[scopeKey] = &holder{token: token, expiresAt: expires}

	return &Lease{ScopeKey: scopeKey, Token: token, ExpiresAt: expires}, nil
}

// Renew extends the lease if it is still the current holder.
func (m *LocalManager) Renew(lease *Lease, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.held[lease.ScopeKey]
	if !ok || h.token != lease.Token {
		return ErrStale
	}
	if !h.expiresAt.After(m.clock()) {
		return ErrExpired
	}

	h.expiresAt = m.clock().Add(ttl)
	lease.ExpiresAt = h.expiresAt
	return nil
}

// Release frees the scope if the lease is still the current holder.
func (m *LocalManager) Release(lease *Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.held[lease.ScopeKey]
	if !ok || h.token != lease.Token {
		return
	}
	// Keep the token high-water mark so the next acquisition fences this one
	// out even after release.
	h.expiresAt = m.clock()
}

// Validate checks current ownership: called right before commit.
func (m *LocalManager) Validate(lease *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.held[lease.ScopeKey]
	if !ok || h.token != lease.Token {
		return ErrStale
	}
	if !h.expiresAt.After(m.clock()) {
		return ErrExpired
	}
	return nil
}
