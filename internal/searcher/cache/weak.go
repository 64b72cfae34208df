package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/executor"
)

// WeakCache is the in-process tier. Entries are held through weak pointers,
// so the garbage collector may drop any of them; the most recently stored
// ones are also pinned in a fixed ring so a burst of repeated queries
// survives a collection.
type WeakCache struct {
	mu      sync.Mutex
	entries map[string]weak.Pointer[executor.ResultSet]
	pins    []pin
	next    int
	sets    int

	hits   atomic.Int64
	misses atomic.Int64
}

type pin struct {
	key string
	rs  *executor.ResultSet
}

// NewWeakCache pins up to pinned entries. Zero pins nothing.
func NewWeakCache(pinned int) *WeakCache {
	return &WeakCache{
		entries: make(map[string]weak.Pointer[executor.ResultSet]),
		pins:    make([]pin, max(pinned, 0)),
	}
}

func (c *WeakCache) Get(_ context.Context, key executor.CacheKey) (*executor.ResultSet, bool) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	wp, ok := c.entries[k]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	rs := wp.Value()
	if rs == nil {
		delete(c.entries, k)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return rs, true
}

func (c *WeakCache) Set(_ context.Context, key executor.CacheKey, rs *executor.ResultSet) {
	if rs == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	c.entries[k] = weak.Make(rs)
	if len(c.pins) > 0 {
		c.pins[c.next] = pin{key: k, rs: rs}
		c.next = (c.next + 1) % len(c.pins)
	}
	c.sets++
	if c.sets%1024 == 0 {
		c.sweepLocked()
	}
}

// sweepLocked drops entries whose values were collected.
func (c *WeakCache) sweepLocked() {
	for k, wp := range c.entries {
		if wp.Value() == nil {
			delete(c.entries, k)
		}
	}
}

// InvalidateQuery drops every page cached for query. It returns the
// number of entries removed.
func (c *WeakCache) InvalidateQuery(query string) int {
	prefix := query + "\x00"
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	c.unpinLocked(func(k string) bool { return strings.HasPrefix(k, prefix) })
	return removed
}

// Invalidate drops everything.
func (c *WeakCache) Invalidate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	clear(c.entries)
	c.unpinLocked(func(string) bool { return true })
	return n
}

func (c *WeakCache) unpinLocked(drop func(key string) bool) {
	for i, p := range c.pins {
		if p.rs != nil && drop(p.key) {
			c.pins[i] = pin{}
		}
	}
}

// Len returns the number of entries, live or not yet swept.
func (c *WeakCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *WeakCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
