package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	client := NewMemory()

	for i := 1; i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "checkout:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, int64(i), count)
	}
	allowed, _, err := client.FixedWindowAllow(ctx, "checkout:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestMemoryStoreHonoursTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore(func() time.Time { return now })
	client := &Client{store: store}
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "k", "v", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, err = client.Get(ctx, "k")
	require.True(t, IsNil(err))
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "smm:idempotency:stripe_webhook:evt_1", client.IdempotencyKey("stripe_webhook", "evt_1"))
	require.Equal(t, "smm:rate_limit:scope", client.RateLimitKey("scope"))
	require.Equal(t, "smm:lock:dispatch:42", client.LockKey("dispatch:42"))
	require.Equal(t, "smm:cache:settings", client.CacheKey("settings", ""))
}

func TestLockOwnership(t *testing.T) {
	ctx := context.Background()
	client := NewMemory()

	first, err := NewLock(client, "order-reconcile", time.Minute)
	require.NoError(t, err)
	second, err := NewLock(client, "order-reconcile", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// A non-owner release must not free the holder's lease.
	require.NoError(t, second.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}
