package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is a shared decision cache: multiple service replicas
// see the same cached decisions, so an invalidation on one node takes
// effect for all of them. Redis TTL handles expiry.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

var _ DecisionCache = (*RedisCache)(nil)

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// key builds the Redis key. Identifiers are opaque strings and may
// themselves contain ':' or glob metacharacters, so each component is
// escaped before joining; otherwise distinct triples could share a key
// and InvalidatePrincipal's SCAN pattern could match foreign entries.
func (c *RedisCache) key(key CacheKey) string {
	return fmt.Sprintf("authz:decision:%s:%s:%s",
		url.QueryEscape(string(key.Principal)),
		url.QueryEscape(string(key.Entity)),
		url.QueryEscape(string(key.Permission)))
}

// Get returns the cached decision if present. Backend or decode
// failures surface as errors so the caller can fall through to a full
// resolution instead of serving a guess.
func (c *RedisCache) Get(ctx context.Context, key CacheKey) (Decision, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		c.misses.Add(1)
		return Decision{}, false, nil
	}
	if err != nil {
		c.misses.Add(1)
		return Decision{}, false, fmt.Errorf("redis get: %w", err)
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		c.misses.Add(1)
		return Decision{}, false, fmt.Errorf("decoding cached decision: %w", err)
	}
	c.hits.Add(1)
	return d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key CacheKey, d Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding decision: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// InvalidatePrincipal scans for the principal's keys and deletes
// them. SCAN keeps this safe on a shared Redis.
func (c *RedisCache) InvalidatePrincipal(ctx context.Context, principal PrincipalID) error {
	pattern := fmt.Sprintf("authz:decision:%s:*", url.QueryEscape(string(principal)))
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

func (c *RedisCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "authz:decision:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

func (c *RedisCache) Stats() CacheStats {
	stats := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying connection for health probes.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}
