package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// StoreGateway implements domain.Gateway: it pairs a raw Store with a
// KeyedMutex so read-modify-write sequences on one key are serialized
// within this process. Raw store failures surface as typed read_failed /
// write_failed errors.
type StoreGateway struct {
	store  domain.Store
	locks  *KeyedMutex
	logger *zap.Logger
}

// NewStoreGateway wraps a store with its own lock table.
func NewStoreGateway(store domain.Store, logger *zap.Logger) *StoreGateway {
	return &StoreGateway{
		store:  store,
		locks:  NewKeyedMutex(),
		logger: logger,
	}
}

// NewStoreGatewayWithLocks wraps a store with explicit lock timings (for
// tests).
func NewStoreGatewayWithLocks(store domain.Store, locks *KeyedMutex, logger *zap.Logger) *StoreGateway {
	return &StoreGateway{store: store, locks: locks, logger: logger}
}

// Read reads a key.
func (g *StoreGateway) Read(ctx context.Context, key string, out any) (bool, error) {
	ok, err := g.store.Get(ctx, key, out)
	if err != nil {
		return false, domain.Ef(domain.ErrReadFailed, "read %q failed", key).WithCause(err)
	}
	return ok, nil
}

// Write writes a key.
func (g *StoreGateway) Write(ctx context.Context, key string, value any) error {
	if err := g.store.Set(ctx, key, value); err != nil {
		return domain.Ef(domain.ErrWriteFailed, "write %q failed", key).WithCause(err)
	}
	return nil
}

// Delete removes a key.
func (g *StoreGateway) Delete(ctx context.Context, key string) error {
	if err := g.store.Delete(ctx, key); err != nil {
		return domain.Ef(domain.ErrWriteFailed, "delete %q failed", key).WithCause(err)
	}
	return nil
}

// WithLock runs fn while holding the exclusive in-process lock for key.
func (g *StoreGateway) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return g.locks.WithLock(ctx, key, fn)
}

// Ensure StoreGateway implements domain.Gateway.
var _ domain.Gateway = (*StoreGateway)(nil)
