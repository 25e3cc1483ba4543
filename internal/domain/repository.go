package domain

import (
	"context"
	"time"
)

// Store is one flat key-value namespace. Values are JSON-shaped; Get
// unmarshals into out and reports whether the key existed. Stores offer no
// cross-key transactionality - every read-modify-write goes through a
// Gateway lock.
type Store interface {
	// Get reads a key. Returns (false, nil) when the key is absent.
	Get(ctx context.Context, key string, out any) (bool, error)

	// Set writes a key.
	Set(ctx context.Context, key string, value any) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}

// Gateway wraps a Store with per-key mutual exclusion. All mutation of a
// key happens inside WithLock on that key; reads outside a lock are
// point-in-time snapshots.
type Gateway interface {
	// Read reads a key. Returns (false, nil) when the key is absent.
	Read(ctx context.Context, key string, out any) (bool, error)

	// Write writes a key.
	Write(ctx context.Context, key string, value any) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// WithLock runs fn while holding the exclusive lock for key. Acquisition
	// that cannot complete within the configured timeout fails with a
	// lock_timeout error; callers treat that as retryable.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Clock supplies the current time. Injected so the escalation and delay
// logic is testable against a fake.
type Clock interface {
	Now() time.Time
}

// WakeScheduler fires named one-shot wake-ups for user-visible
// notification. Correctness never depends on a wake-up firing; the clock
// check on confirm is authoritative.
type WakeScheduler interface {
	// Schedule arranges fn to run at the given instant, replacing any
	// earlier wake-up with the same name.
	Schedule(name string, at time.Time, fn func())

	// Clear cancels a named wake-up if one is outstanding.
	Clear(name string)
}

// TabController is the browser-side collaborator: it knows the open tabs
// and can redirect one. The core never touches a browser API directly.
type TabController interface {
	// OpenTabs returns all open tabs with their URLs.
	OpenTabs(ctx context.Context) ([]Tab, error)

	// Redirect navigates a tab to the given URL.
	Redirect(ctx context.Context, tabID int, url string) error
}
