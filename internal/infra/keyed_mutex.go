// Package infra implements infrastructure concerns (storage, locking,
// timers, the browser bridge).
package infra

import (
	"context"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	// DefaultLockTimeout bounds how long a lock acquisition may wait before
	// failing with lock_timeout.
	DefaultLockTimeout = 5 * time.Second

	// DefaultLockPoll is the interval between acquisition attempts.
	DefaultLockPoll = 10 * time.Millisecond
)

// KeyedMutex provides in-process exclusive locks named by storage key.
// Distinct keys lock independently; acquisitions on the same key are
// serialized in arrival order of their poll attempts. It does not protect
// against a second process holding its own lock table.
type KeyedMutex struct {
	mu      sync.Mutex
	held    map[string]bool
	timeout time.Duration
	poll    time.Duration
}

// NewKeyedMutex creates a keyed mutex with default timeout and poll
// interval.
func NewKeyedMutex() *KeyedMutex {
	return NewKeyedMutexWithTimeout(DefaultLockTimeout, DefaultLockPoll)
}

// NewKeyedMutexWithTimeout creates a keyed mutex with explicit timings
// (used by tests to keep timeouts short).
func NewKeyedMutexWithTimeout(timeout, poll time.Duration) *KeyedMutex {
	return &KeyedMutex{
		held:    make(map[string]bool),
		timeout: timeout,
		poll:    poll,
	}
}

// Acquire takes the lock for key, polling until it is free. It fails with
// a lock_timeout error when the bounded wait elapses or ctx is canceled;
// callers treat that as retryable, not fatal.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) error {
	deadline := time.Now().Add(m.timeout)

	for {
		m.mu.Lock()
		if !m.held[key] {
			m.held[key] = true
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return domain.Ef(domain.ErrLockTimeout, "timed out waiting for lock %q", key)
		}

		select {
		case <-ctx.Done():
			return domain.Ef(domain.ErrLockTimeout, "canceled waiting for lock %q", key).WithCause(ctx.Err())
		case <-time.After(m.poll):
		}
	}
}

// Release frees the lock for key.
func (m *KeyedMutex) Release(key string) {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
}

// WithLock runs fn while holding the lock for key.
func (m *KeyedMutex) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := m.Acquire(ctx, key); err != nil {
		return err
	}
	defer m.Release(key)
	return fn(ctx)
}
