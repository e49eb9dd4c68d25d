package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(mr.Addr(), "", 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	key := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Decision{Allowed: false, Reason: ReasonDeniedExplicitly, CheckedAt: testNow}
	require.NoError(t, cache.Set(ctx, key, want))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonDeniedExplicitly, got.Reason)
}

func TestRedisCacheExpiry(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := context.Background()

	key := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	require.NoError(t, cache.Set(ctx, key, Decision{Allowed: true}))

	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheInvalidatePrincipal(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	aliceRead := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	aliceWrite := CacheKey{Principal: "alice", Entity: "task", Permission: "write"}
	bobRead := CacheKey{Principal: "bob", Entity: "task", Permission: "read"}
	for _, key := range []CacheKey{aliceRead, aliceWrite, bobRead} {
		require.NoError(t, cache.Set(ctx, key, Decision{Allowed: true}))
	}

	require.NoError(t, cache.InvalidatePrincipal(ctx, "alice"))

	_, ok, err := cache.Get(ctx, aliceRead)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = cache.Get(ctx, aliceWrite)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = cache.Get(ctx, bobRead)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCachePurge(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	key := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	require.NoError(t, cache.Set(ctx, key, Decision{Allowed: true}))
	require.NoError(t, cache.Purge(ctx))

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheBackendDownSurfacesError(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := context.Background()
	mr.Close()

	key := CacheKey{Principal: "alice", Entity: "task", Permission: "read"}
	_, ok, err := cache.Get(ctx, key)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewRedisCacheBadAddr(t *testing.T) {
	_, err := NewRedisCache("127.0.0.1:0", "", 0, time.Minute)
	assert.Error(t, err)
}

func TestRedisCacheKeysDistinguishTriples(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	// Identifiers are opaque, so a ':' inside one component must not
	// make two different triples share a key.
	first := CacheKey{Principal: "mallory", Entity: "doc", Permission: "x:read"}
	second := CacheKey{Principal: "mallory", Entity: "doc:x", Permission: "read"}
	require.NoError(t, cache.Set(ctx, first, Decision{Allowed: true, Reason: ReasonAllowedByRole}))

	_, ok, err := cache.Get(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok, "distinct triple must not hit the other's entry")

	got, ok, err := cache.Get(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Allowed)
}

func TestRedisCacheInvalidatePrincipalWithColonID(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	svc := CacheKey{Principal: "svc:reporting", Entity: "task", Permission: "read"}
	other := CacheKey{Principal: "svc", Entity: "reporting:task", Permission: "read"}
	require.NoError(t, cache.Set(ctx, svc, Decision{Allowed: true}))
	require.NoError(t, cache.Set(ctx, other, Decision{Allowed: true}))

	require.NoError(t, cache.InvalidatePrincipal(ctx, "svc:reporting"))

	_, ok, err := cache.Get(ctx, svc)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = cache.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok, "other principal's entry must survive")
}
