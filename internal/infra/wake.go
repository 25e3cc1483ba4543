package infra

import (
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// NamedTimers implements domain.WakeScheduler with in-process one-shot
// timers keyed by name. Wake-ups are notification-only: if the process is
// suspended past a fire time, nothing is lost, because deadlines are
// re-checked from the clock on every authoritative operation.
type NamedTimers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewNamedTimers creates an empty timer table.
func NewNamedTimers() *NamedTimers {
	return &NamedTimers{
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arranges fn to run at the given instant, replacing any earlier
// wake-up with the same name. An instant in the past fires immediately.
func (t *NamedTimers) Schedule(name string, at time.Time, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[name]; ok {
		old.Stop()
	}

	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	t.timers[name] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, name)
		t.mu.Unlock()
		fn()
	})
}

// Clear cancels a named wake-up if one is outstanding.
func (t *NamedTimers) Clear(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[name]; ok {
		timer.Stop()
		delete(t.timers, name)
	}
}

// StopAll cancels every outstanding wake-up (shutdown path).
func (t *NamedTimers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, timer := range t.timers {
		timer.Stop()
		delete(t.timers, name)
	}
}

// Ensure NamedTimers implements domain.WakeScheduler.
var _ domain.WakeScheduler = (*NamedTimers)(nil)
