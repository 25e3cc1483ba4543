package infra

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

func newTestEncryptedStore(t *testing.T) (*EncryptedStore, string, []byte) {
	t.Helper()

	dataDir := t.TempDir()
	key, err := NewFileKeyProvider(dataDir).EnsureKey()
	require.NoError(t, err)

	store, err := NewEncryptedStore(dataDir, key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dataDir, key
}

func TestEncryptedStore_RoundTrip(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)
	ctx := context.Background()

	pending := map[string]domain.PendingUnblock{
		"youtube.com": {RequestedAt: 1700000000000, UnlocksAt: 1700000300000, AttemptNumber: 2},
	}
	require.NoError(t, store.Set(ctx, domain.KeyPendingUnblocks, pending))

	got := map[string]domain.PendingUnblock{}
	found, err := store.Get(ctx, domain.KeyPendingUnblocks, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, pending, got)
}

func TestEncryptedStore_AbsentKey(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)
	ctx := context.Background()

	got := map[string]int{}
	found, err := store.Get(ctx, "nonexistent", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEncryptedStore_Overwrite(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, domain.KeyDailyAttempts, map[string]int{"youtube.com|2024-03-13": 1}))
	require.NoError(t, store.Set(ctx, domain.KeyDailyAttempts, map[string]int{"youtube.com|2024-03-13": 2}))

	got := map[string]int{}
	found, err := store.Get(ctx, domain.KeyDailyAttempts, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]int{"youtube.com|2024-03-13": 2}, got)
}

func TestEncryptedStore_Delete(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, domain.KeyDailyAttempts, map[string]int{"youtube.com|2024-03-13": 1}))
	require.NoError(t, store.Delete(ctx, domain.KeyDailyAttempts))

	got := map[string]int{}
	found, err := store.Get(ctx, domain.KeyDailyAttempts, &got)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, "nonexistent"))
}

func TestEncryptedStore_PersistsAcrossReopen(t *testing.T) {
	store, dataDir, key := newTestEncryptedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, domain.KeyDailyAttempts, map[string]int{"reddit.com|2024-03-13": 3}))
	require.NoError(t, store.Close())

	reopened, err := NewEncryptedStore(dataDir, key)
	require.NoError(t, err)
	defer reopened.Close()

	got := map[string]int{}
	found, err := reopened.Get(ctx, domain.KeyDailyAttempts, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]int{"reddit.com|2024-03-13": 3}, got)
}

func TestEncryptedStore_WrongKeyFailsToOpen(t *testing.T) {
	store, dataDir, _ := newTestEncryptedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, domain.KeyDailyAttempts, map[string]int{"youtube.com|2024-03-13": 1}))
	require.NoError(t, store.Close())

	wrongKey := make([]byte, keySize)
	for i := range wrongKey {
		wrongKey[i] = byte(i)
	}
	bad, err := NewEncryptedStore(dataDir, wrongKey)
	if bad != nil {
		bad.Close()
	}
	assert.Error(t, err)
}

func TestEncryptedStore_FileUnreadableWithoutKey(t *testing.T) {
	store, _, _ := newTestEncryptedStore(t)
	ctx := context.Background()

	secret := "very-secret-pending-domain.example"
	require.NoError(t, store.Set(ctx, domain.KeyDailyAttempts, map[string]int{secret: 1}))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secret)
	assert.NotContains(t, string(raw), "dailyAttempts")
}
