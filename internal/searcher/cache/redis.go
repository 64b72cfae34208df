package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/redis"
)

const keyPrefix = "search:"

// RedisClient is the subset of pkg/redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// RedisCache is the shared tier: JSON result sets under hashed keys with a
// TTL, so every searcher replica benefits from the others' work.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewRedisCache(client RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "redis-cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key executor.CacheKey) (*executor.ResultSet, bool) {
	k := buildKey(key)
	data, err := c.client.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.ResultSet
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", key.Query, "key", k)
	return &result, true
}

func (c *RedisCache) Set(ctx context.Context, key executor.CacheKey, rs *executor.ResultSet) {
	k := buildKey(key)
	data, err := json.Marshal(rs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.client.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// InvalidateQuery deletes every cached page of one normalized query.
func (c *RedisCache) InvalidateQuery(ctx context.Context, query string) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+queryHash(query)+":*")
	if err != nil {
		return 0, fmt.Errorf("invalidating query %q: %w", query, err)
	}
	return deleted, nil
}

func (c *RedisCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *RedisCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey groups every page of a query under one hash prefix so a query
// can be invalidated with a single pattern.
func buildKey(key executor.CacheKey) string {
	return fmt.Sprintf("%s%s:%d:%d:%d", keyPrefix, queryHash(key.Query), key.Generation, key.Page, key.PageSize)
}

func queryHash(query string) string {
	hash := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%x", hash[:16])
}
