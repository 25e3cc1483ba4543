package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// memGateway is an in-memory domain.Gateway for unit tests. Values are
// stored JSON-encoded so tests exercise the same shapes as the real
// stores.
type memGateway struct {
	mu   sync.Mutex
	data map[string]json.RawMessage

	// failReads / failWrites inject storage faults per key.
	failReads  map[string]error
	failWrites map[string]error
}

func newMemGateway() *memGateway {
	return &memGateway{
		data:       make(map[string]json.RawMessage),
		failReads:  make(map[string]error),
		failWrites: make(map[string]error),
	}
}

func (g *memGateway) Read(ctx context.Context, key string, out any) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failReads[key]; err != nil {
		return false, err
	}
	raw, ok := g.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (g *memGateway) Write(ctx context.Context, key string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failWrites[key]; err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	g.data[key] = raw
	return nil
}

func (g *memGateway) Delete(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.data, key)
	return nil
}

func (g *memGateway) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ domain.Gateway = (*memGateway)(nil)

// lockedMemGateway adds real per-key mutual exclusion so tests can drive
// concurrent callers through WithLock the way the on-disk stores do.
type lockedMemGateway struct {
	*memGateway

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func newLockedMemGateway() *lockedMemGateway {
	return &lockedMemGateway{
		memGateway: newMemGateway(),
		locks:      make(map[string]*sync.Mutex),
	}
}

func (g *lockedMemGateway) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	g.lockMu.Lock()
	m, ok := g.locks[key]
	if !ok {
		m = &sync.Mutex{}
		g.locks[key] = m
	}
	g.lockMu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

var _ domain.Gateway = (*lockedMemGateway)(nil)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeTabs records redirects issued against a fixed tab snapshot.
type fakeTabs struct {
	mu        sync.Mutex
	tabs      []domain.Tab
	redirects []redirect
}

type redirect struct {
	tabID int
	url   string
}

func (f *fakeTabs) OpenTabs(ctx context.Context) ([]domain.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Tab(nil), f.tabs...), nil
}

func (f *fakeTabs) Redirect(ctx context.Context, tabID int, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects = append(f.redirects, redirect{tabID: tabID, url: url})
	return nil
}

// fakeWake records scheduled and cleared wake-ups without firing them.
type fakeWake struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cleared   []string
}

func newFakeWake() *fakeWake {
	return &fakeWake{scheduled: make(map[string]time.Time)}
}

func (f *fakeWake) Schedule(name string, at time.Time, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[name] = at
}

func (f *fakeWake) Clear(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, name)
	f.cleared = append(f.cleared, name)
}

// newTestBlockList wires a BlockList over in-memory gateways.
func newTestBlockList(clock domain.Clock, tabs domain.TabController) (*BlockList, *memGateway, *memGateway) {
	sync := newMemGateway()
	local := newMemGateway()
	logger := zap.NewNop()
	settings := NewSettingsManager(sync, logger)
	return NewBlockList(sync, local, clock, tabs, settings, logger), sync, local
}
