// Package cache provides a Redis-backed key-value cache with a circuit
// breaker in front of it, so a Redis outage degrades reads to "miss" and
// writes to no-ops rather than failing the caller.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beaconrag/beacon/pkg/resilience"
)

// DefaultTTL is the cache entry lifetime used when none is specified.
const DefaultTTL = 1800 * time.Second

// Cache is a generic TTL key-value cache backed by Redis and guarded by a
// circuit breaker. A Redis outage never fails the caller: Get reports a miss
// and Set is silently skipped while the breaker is open.
type Cache struct {
	rdb     *redis.Client
	breaker *resilience.Breaker
	ttl     time.Duration
}

// New creates a Cache over an existing Redis client.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		rdb:     rdb,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		ttl:     ttl,
	}
}

// Get looks up key and, on a hit, decodes the stored JSON into out and
// returns true. Any Redis error, including a circuit-open guard, or a
// decode failure is reported as a miss (false).
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	var raw string
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := c.rdb.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false
	}
	return true
}

// Set stores value under key with the Cache's configured TTL. Failures
// (including a tripped breaker) are swallowed.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.breaker.Call(ctx, func(ctx context.Context) error {
		return c.rdb.Set(ctx, key, data, c.ttl).Err()
	})
}

// Delete removes key, used to invalidate a token on explicit sign-out.
// Failures are swallowed.
func (c *Cache) Delete(ctx context.Context, key string) {
	_ = c.breaker.Call(ctx, func(ctx context.Context) error {
		return c.rdb.Del(ctx, key).Err()
	})
}

// TokenKey builds the cache key for a verified bearer token.
func TokenKey(rawToken string) string {
	return "token:" + rawToken
}

// EmbeddingKey builds the cache key for a cached prompt embedding.
func EmbeddingKey(model, prompt string) string {
	h := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("emb:%s:%s", model, hex.EncodeToString(h[:]))
}
