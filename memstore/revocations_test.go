package memstore_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/goliatone/go-forum-auth/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRevocations(t *testing.T) *memstore.Revocations {
	t.Helper()
	store, err := memstore.NewRevocations(memstore.DefaultRevocationsConfig())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestRevocations_RevokeAndCheck(t *testing.T) {
	ctx := context.Background()
	store := newRevocations(t)

	revoked, err := store.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "token-a", time.Hour))

	revoked, err = store.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "token-b")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocations_ZeroTTL(t *testing.T) {
	ctx := context.Background()
	store := newRevocations(t)

	require.NoError(t, store.Revoke(ctx, "token-a", 0))

	revoked, err := store.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocations_ExpiresWithTheToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	store := newRevocations(t).WithClock(clock)
	require.NoError(t, store.Revoke(ctx, "token-a", 10*time.Minute))

	mu.Lock()
	now = now.Add(11 * time.Minute)
	mu.Unlock()

	revoked, err := store.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocations_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := newRevocations(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		token := fmt.Sprintf("token-%d", i)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Revoke(ctx, token, time.Hour))
		}()
		go func() {
			defer wg.Done()
			_, err := store.IsRevoked(ctx, token)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		revoked, err := store.IsRevoked(ctx, fmt.Sprintf("token-%d", i))
		require.NoError(t, err)
		assert.True(t, revoked)
	}
}

func TestRevocations_CancelledContext(t *testing.T) {
	store := newRevocations(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, auth.IsTransient(store.Revoke(ctx, "token", time.Hour)))

	_, err := store.IsRevoked(ctx, "token")
	assert.True(t, auth.IsTransient(err))
}

func TestRevocations_ManyRevocationsAllHold(t *testing.T) {
	ctx := context.Background()
	store := newRevocations(t)

	const total = 60000
	for i := 0; i < total; i++ {
		require.NoError(t, store.Revoke(ctx, fmt.Sprintf("token-%d", i), time.Hour))
	}

	forgotten := 0
	for i := 0; i < total; i++ {
		revoked, err := store.IsRevoked(ctx, fmt.Sprintf("token-%d", i))
		require.NoError(t, err)
		if !revoked {
			forgotten++
		}
	}
	assert.Zero(t, forgotten)
	assert.Equal(t, int64(total), store.Len())
}

func TestRevocations_FullStoreRefusesInsteadOfEvicting(t *testing.T) {
	ctx := context.Background()
	store, err := memstore.NewRevocations(memstore.RevocationsConfig{MaxEntries: 50})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	var accepted []string
	refused := 0
	for i := 0; i < 80; i++ {
		token := fmt.Sprintf("token-%d", i)
		err := store.Revoke(ctx, token, time.Hour)
		if err != nil {
			assert.True(t, auth.IsTransient(err))
			refused++
			continue
		}
		accepted = append(accepted, token)
	}

	assert.Len(t, accepted, 50)
	assert.Equal(t, 30, refused)

	for _, token := range accepted {
		revoked, err := store.IsRevoked(ctx, token)
		require.NoError(t, err)
		assert.True(t, revoked, token)
	}
}

func TestRevocations_RevokeIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := newRevocations(t)

	claimed, err := store.RevokeIfAbsent(ctx, "token-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.RevokeIfAbsent(ctx, "token-a", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = store.RevokeIfAbsent(ctx, "token-b", 0)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRevocations_RevokeIfAbsentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newRevocations(t)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.RevokeIfAbsent(ctx, "reset-token", time.Hour)
			assert.NoError(t, err)
			if claimed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
