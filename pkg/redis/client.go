// Package redis provides a thin wrapper around go-redis/v9 with connection
// pooling, cache get/set/delete operations, pattern-based key invalidation and
// the lexicographic sorted-set primitives used by the posting store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/config"
)

// Client is shared by the Redis posting store and the L2 response cache.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the string value for the given key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores a value with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// flushBatch is both the SCAN count hint and the UNLINK batch size.
const flushBatch = 256

// FlushByPattern unlinks every key matching the glob pattern in batches and
// returns how many were removed. Keys written during the scan may survive.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	batch := make([]string, 0, flushBatch)
	unlink := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, batch...).Result()
		deleted += n
		batch = batch[:0]
		return err
	}
	iter := c.rdb.Scan(ctx, 0, pattern, flushBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushBatch {
			if err := unlink(); err != nil {
				return deleted, fmt.Errorf("unlinking %s keys: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	if err := unlink(); err != nil {
		return deleted, fmt.Errorf("unlinking %s keys: %w", pattern, err)
	}
	return deleted, nil
}

// ZAddLexValues adds members to the sorted set at key with score 0, so that
// ZRANGEBYLEX orders them bytewise, and stores values[i] for members[i] in
// the hash at hashKey. Both writes run in one MULTI/EXEC.
func (c *Client) ZAddLexValues(ctx context.Context, key, hashKey string, members, values []string) error {
	if len(members) == 0 {
		return nil
	}
	if len(members) != len(values) {
		return fmt.Errorf("%d members with %d values", len(members), len(values))
	}
	zs := make([]redis.Z, len(members))
	pairs := make([]any, 0, 2*len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: 0, Member: m}
		pairs = append(pairs, m, values[i])
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, zs...)
		pipe.HSet(ctx, hashKey, pairs...)
		return nil
	})
	return err
}

// ZRemLexValues removes members from the sorted set at key together with
// their values in the hash at hashKey.
func (c *Client) ZRemLexValues(ctx context.Context, key, hashKey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	zm := make([]any, len(members))
	for i, m := range members {
		zm[i] = m
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key, zm...)
		pipe.HDel(ctx, hashKey, members...)
		return nil
	})
	return err
}

// HMGet returns the values of fields in the hash at key, nil for a missing
// field.
func (c *Client) HMGet(ctx context.Context, key string, fields ...string) ([]any, error) {
	return c.rdb.HMGet(ctx, key, fields...).Result()
}

// ZRangeByLex returns up to count members of key in [min, max) style lex
// bounds. Bounds use Redis syntax: "[x" inclusive, "(x" exclusive, "-"/"+"
// open.
func (c *Client) ZRangeByLex(ctx context.Context, key, min, max string, count int64) ([]string, error) {
	return c.rdb.ZRangeByLex(ctx, key, &redis.ZRangeBy{
		Min:   min,
		Max:   max,
		Count: count,
	}).Result()
}

// ZCard returns the number of members in a sorted set.
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	return c.rdb.ZCard(ctx, key).Result()
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
