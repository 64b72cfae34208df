package cache

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/executor"
)

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failGet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return "", f.failGet
	}
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	default:
		f.data[key] = fmt.Sprint(v)
	}
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func resultSet(query string, total int) *executor.ResultSet {
	return &executor.ResultSet{
		Query:        query,
		Page:         1,
		PageSize:     10,
		TotalMatches: total,
		Results:      []executor.Result{{Rank: 0.75, URL: "http://a.example", Title: "A", Keywords: []string{"k"}}},
	}
}

func TestWeakCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewWeakCache(4)
	key := executor.CacheKey{Query: "go search", Page: 1, PageSize: 10}

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	rs := resultSet("go search", 1)
	c.Set(ctx, key, rs)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Same(t, rs, got)

	_, ok = c.Get(ctx, executor.CacheKey{Query: "go search", Page: 2, PageSize: 10})
	assert.False(t, ok, "pages are cached independently")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestWeakCachePinnedSurvivesGC(t *testing.T) {
	ctx := context.Background()
	c := NewWeakCache(2)
	key := executor.CacheKey{Query: "pinned", Page: 1, PageSize: 10}
	c.Set(ctx, key, resultSet("pinned", 1))

	runtime.GC()
	runtime.GC()

	_, ok := c.Get(ctx, key)
	assert.True(t, ok)
}

func TestWeakCacheUnpinnedMayBeCollected(t *testing.T) {
	ctx := context.Background()
	c := NewWeakCache(0)
	key := executor.CacheKey{Query: "loose", Page: 1, PageSize: 10}
	c.Set(ctx, key, resultSet("loose", 1))

	runtime.GC()
	runtime.GC()

	if _, ok := c.Get(ctx, key); !ok {
		assert.Zero(t, c.Len(), "collected entries are dropped on read")
	}
}

func TestWeakCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewWeakCache(8)
	held := make([]*executor.ResultSet, 0, 4)
	for _, q := range []string{"go", "go search"} {
		for page := 1; page <= 2; page++ {
			rs := resultSet(q, 1)
			held = append(held, rs)
			c.Set(ctx, executor.CacheKey{Query: q, Page: page, PageSize: 10}, rs)
		}
	}
	require.Equal(t, 4, c.Len())

	assert.Equal(t, 2, c.InvalidateQuery("go"))
	_, ok := c.Get(ctx, executor.CacheKey{Query: "go", Page: 1, PageSize: 10})
	assert.False(t, ok)
	_, ok = c.Get(ctx, executor.CacheKey{Query: "go search", Page: 1, PageSize: 10})
	assert.True(t, ok, "a query sharing a prefix is kept")

	assert.Equal(t, 2, c.Invalidate())
	assert.Zero(t, c.Len())
	runtime.KeepAlive(held)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	c := NewRedisCache(client, time.Minute)
	key := executor.CacheKey{Query: "go search", Page: 2, PageSize: 5}

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, resultSet("go search", 3))
	assert.Equal(t, time.Minute, client.ttls[buildKey(key)])

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 3, got.TotalMatches)
	assert.Equal(t, "http://a.example", got.Results[0].URL)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestRedisCacheGetError(t *testing.T) {
	client := newFakeRedis()
	client.failGet = errors.New("connection reset")
	c := NewRedisCache(client, time.Minute)
	_, ok := c.Get(context.Background(), executor.CacheKey{Query: "q", Page: 1, PageSize: 1})
	assert.False(t, ok)
}

func TestRedisCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	c := NewRedisCache(client, time.Minute)
	for _, q := range []string{"alpha", "beta"} {
		for page := 1; page <= 3; page++ {
			c.Set(ctx, executor.CacheKey{Query: q, Page: page, PageSize: 10}, resultSet(q, 1))
		}
	}

	n, err := c.InvalidateQuery(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Empty(t, client.data)
}

func TestBuildKeyGroupsPages(t *testing.T) {
	a := buildKey(executor.CacheKey{Query: "q", Page: 1, PageSize: 10})
	b := buildKey(executor.CacheKey{Query: "q", Page: 2, PageSize: 10})
	c := buildKey(executor.CacheKey{Query: "r", Page: 1, PageSize: 10})
	d := buildKey(executor.CacheKey{Query: "q", Page: 1, PageSize: 10, Generation: 2})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, d)
	assert.Equal(t, a[:len(keyPrefix)+32], b[:len(keyPrefix)+32])
	assert.Equal(t, a[:len(keyPrefix)+32], d[:len(keyPrefix)+32])
	assert.NotEqual(t, a[:len(keyPrefix)+32], c[:len(keyPrefix)+32])
}

func TestTieredPromotesRedisHits(t *testing.T) {
	ctx := context.Background()
	local := NewWeakCache(4)
	remote := NewRedisCache(newFakeRedis(), time.Minute)
	tiered := NewTiered(local, remote, nil)
	key := executor.CacheKey{Query: "go", Page: 1, PageSize: 10}

	_, ok := tiered.Get(ctx, key)
	assert.False(t, ok)

	// another replica populated Redis
	remote.Set(ctx, key, resultSet("go", 2))

	got, ok := tiered.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 2, got.TotalMatches)

	got2, ok := tiered.Get(ctx, key)
	require.True(t, ok)
	assert.Same(t, got, got2, "second read is served locally")

	stats := tiered.Stats()
	assert.Equal(t, int64(1), stats[tierLocal].Hits)
	assert.Equal(t, 1, stats[tierLocal].Entries)
	assert.Equal(t, int64(1), stats[tierRedis].Hits)
	assert.Equal(t, int64(1), stats[tierRedis].Misses)
	assert.InDelta(t, 0.5, stats[tierRedis].HitRate, 1e-9)
}

func TestTieredInvalidate(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	tiered := NewTiered(NewWeakCache(4), NewRedisCache(client, time.Minute), nil)
	rs := resultSet("go", 1)
	tiered.Set(ctx, executor.CacheKey{Query: "go", Page: 1, PageSize: 10}, rs)
	tiered.Set(ctx, executor.CacheKey{Query: "rust", Page: 1, PageSize: 10}, rs)

	n, err := tiered.InvalidateQuery(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = tiered.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, client.data)
}

func TestTieredLocalOnly(t *testing.T) {
	ctx := context.Background()
	tiered := NewTiered(NewWeakCache(1), nil, nil)
	key := executor.CacheKey{Query: "go", Page: 1, PageSize: 10}
	tiered.Set(ctx, key, resultSet("go", 1))
	_, ok := tiered.Get(ctx, key)
	assert.True(t, ok)
	_, hasRedis := tiered.Stats()[tierRedis]
	assert.False(t, hasRedis)
}
