package acls

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DecisionCache caches access-check outcomes. Implementations must treat the
// cache as advisory: a miss or backend failure means "recompute", never
// "deny".
type DecisionCache interface {
	Get(ctx context.Context, key string) (allowed bool, ok bool)
	Set(ctx context.Context, key string, allowed bool)
	// InvalidateType drops every cached decision for objects of the given
	// type. Called on grant/revoke for the mutated object's type and every
	// type that inherits from it, since decisions on descendants depend on
	// ancestor ACLs; the TTL bounds staleness for membership changes made
	// outside the engine.
	InvalidateType(ctx context.Context, objectType string)
}

// RedisDecisionCache is a redis-backed DecisionCache shared across
// instances. Redis errors fail open: the engine recomputes the decision.
type RedisDecisionCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisDecisionCache creates a decision cache with the given TTL.
func NewRedisDecisionCache(client *redis.Client, ttl time.Duration) *RedisDecisionCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisDecisionCache{
		client: client,
		ttl:    ttl,
		prefix: "acl:decision",
	}
}

// Get returns a cached decision, if present.
func (c *RedisDecisionCache) Get(ctx context.Context, key string) (bool, bool) {
	value, err := c.client.Get(ctx, c.prefix+":"+key).Result()
	if err != nil {
		return false, false
	}
	return value == "1", true
}

// Set stores a decision with the cache TTL.
func (c *RedisDecisionCache) Set(ctx context.Context, key string, allowed bool) {
	value := "0"
	if allowed {
		value = "1"
	}
	_ = c.client.Set(ctx, c.prefix+":"+key, value, c.ttl).Err()
}

// InvalidateType scans for keys mentioning the object type and deletes them.
// Decision keys embed the object as "<type>:<id>:" between user and
// permission.
func (c *RedisDecisionCache) InvalidateType(ctx context.Context, objectType string) {
	pattern := fmt.Sprintf("%s:*:%s:*", c.prefix, objectType)

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			_ = c.client.Del(ctx, keys...).Err()
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
