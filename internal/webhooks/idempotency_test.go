package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

func TestIdempotencyGuardMarksOnce(t *testing.T) {
	guard, err := NewIdempotencyGuard(redis.NewMemory(), time.Hour, ScopeStripe)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt_1"))
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardScopesAreIndependent(t *testing.T) {
	store := redis.NewMemory()
	stripeGuard, err := NewIdempotencyGuard(store, time.Hour, ScopeStripe)
	require.NoError(t, err)
	squareGuard, err := NewIdempotencyGuard(store, time.Hour, ScopeSquare)
	require.NoError(t, err)

	_, err = stripeGuard.CheckAndMark(context.Background(), "evt_shared")
	require.NoError(t, err)
	seen, err := squareGuard.CheckAndMark(context.Background(), "evt_shared")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, ScopeStripe)
	assert.Error(t, err)
	_, err = NewIdempotencyGuard(redis.NewMemory(), -time.Second, ScopeStripe)
	assert.Error(t, err)
	_, err = NewIdempotencyGuard(redis.NewMemory(), time.Hour, "")
	assert.Error(t, err)

	guard, err := NewIdempotencyGuard(redis.NewMemory(), time.Hour, ScopeSquare)
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "")
	assert.Error(t, err)
}
