package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()
	ctx := context.Background()

	key := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Decision{Allowed: true, Reason: ReasonAllowedByRole, CheckedAt: testNow}
	require.NoError(t, c.Set(ctx, key, want))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Allowed, got.Allowed)
	assert.Equal(t, want.Reason, got.Reason)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.ItemCount)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache(10, 50*time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	key := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	require.NoError(t, c.Set(ctx, key, Decision{Allowed: true}))

	time.Sleep(80 * time.Millisecond)
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheInvalidatePrincipal(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()
	ctx := context.Background()

	aliceKey := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	bobKey := CacheKey{Principal: "bob", Entity: "task", Permission: "read"}
	require.NoError(t, c.Set(ctx, aliceKey, Decision{Allowed: true}))
	require.NoError(t, c.Set(ctx, bobKey, Decision{Allowed: true}))

	require.NoError(t, c.InvalidatePrincipal(ctx, "alice"))

	_, ok, err := c.Get(ctx, aliceKey)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Get(ctx, bobKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCachePurge(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()
	ctx := context.Background()

	key := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	require.NoError(t, c.Set(ctx, key, Decision{Allowed: true}))
	require.NoError(t, c.Purge(ctx))

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Stats().ItemCount)
}

func TestMemoryCacheCapacityEviction(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	defer c.Close()
	ctx := context.Background()

	for _, p := range []PrincipalID{"a", "b", "c"} {
		key := CacheKey{Principal: p, Entity: "task", Permission: "read"}
		require.NoError(t, c.Set(ctx, key, Decision{Allowed: true}))
	}

	// Oldest entry is gone.
	_, ok, err := c.Get(ctx, CacheKey{Principal: "a", Entity: "task", Permission: "read"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), c.Stats().ItemCount)
}

func TestNopCacheAlwaysMisses(t *testing.T) {
	c := NopCache{}
	ctx := context.Background()
	key := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}

	require.NoError(t, c.Set(ctx, key, Decision{Allowed: true}))
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
