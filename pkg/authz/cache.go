package authz

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL and DefaultCacheSize match the service defaults:
// decisions stay fresh for 30 seconds and the working set is bounded
// at 10,000 triples.
const (
	DefaultCacheTTL  = 30 * time.Second
	DefaultCacheSize = 10000
)

// CacheKey identifies a cached decision by its full check triple.
type CacheKey struct {
	Principal  PrincipalID
	Entity     EntityID
	Permission Permission
}

// DecisionCache stores resolved decisions for a bounded time. A miss
// is reported through the ok result, not an error; errors are
// reserved for backend failures and callers treat them as misses.
type DecisionCache interface {
	Get(ctx context.Context, key CacheKey) (Decision, bool, error)
	Set(ctx context.Context, key CacheKey, d Decision) error
	// InvalidatePrincipal drops every cached decision for a principal
	// after their assignments change. Backends that cannot match by
	// principal may drop more.
	InvalidatePrincipal(ctx context.Context, principal PrincipalID) error
	Purge(ctx context.Context) error
	Stats() CacheStats
	Close() error
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	ItemCount int64   `json:"item_count"`
	HitRate   float64 `json:"hit_rate"`
}

// MemoryCache is the default in-process decision cache, an LRU with
// per-entry TTL expiry.
type MemoryCache struct {
	cache   *lru.LRU[CacheKey, Decision]
	metrics *cacheMetrics
}

var _ DecisionCache = (*MemoryCache)(nil)

// NewMemoryCache creates a memory cache with the given capacity and
// TTL; zero values fall back to the defaults.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		cache:   lru.NewLRU[CacheKey, Decision](maxEntries, nil, ttl),
		metrics: &cacheMetrics{},
	}
}

func (c *MemoryCache) Get(ctx context.Context, key CacheKey) (Decision, bool, error) {
	d, ok := c.cache.Get(key)
	if !ok {
		c.metrics.recordMiss()
		return Decision{}, false, nil
	}
	c.metrics.recordHit()
	return d, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key CacheKey, d Decision) error {
	c.cache.Add(key, d)
	return nil
}

func (c *MemoryCache) InvalidatePrincipal(ctx context.Context, principal PrincipalID) error {
	for _, key := range c.cache.Keys() {
		if key.Principal == principal {
			c.cache.Remove(key)
		}
	}
	return nil
}

func (c *MemoryCache) Purge(ctx context.Context) error {
	c.cache.Purge()
	return nil
}

func (c *MemoryCache) Stats() CacheStats {
	stats := CacheStats{
		Hits:      c.metrics.getHits(),
		Misses:    c.metrics.getMisses(),
		ItemCount: int64(c.cache.Len()),
	}
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

func (c *MemoryCache) Close() error {
	c.cache.Purge()
	return nil
}

type cacheMetrics struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (m *cacheMetrics) recordHit()       { m.hits.Add(1) }
func (m *cacheMetrics) recordMiss()      { m.misses.Add(1) }
func (m *cacheMetrics) getHits() int64   { return m.hits.Load() }
func (m *cacheMetrics) getMisses() int64 { return m.misses.Load() }

// NopCache disables caching; every lookup is a miss and writes are
// discarded. Used when the cache backend is configured off.
type NopCache struct{}

var _ DecisionCache = NopCache{}

func (NopCache) Get(ctx context.Context, key CacheKey) (Decision, bool, error) {
	return Decision{}, false, nil
}
func (NopCache) Set(ctx context.Context, key CacheKey, d Decision) error              { return nil }
func (NopCache) InvalidatePrincipal(ctx context.Context, principal PrincipalID) error { return nil }
func (NopCache) Purge(ctx context.Context) error                                      { return nil }
func (NopCache) Stats() CacheStats                                                    { return CacheStats{} }
func (NopCache) Close() error                                                         { return nil }
