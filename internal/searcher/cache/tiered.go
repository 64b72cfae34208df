// Package cache holds the response cache tiers of the query path: a
// process-local tier of weakly held pages and an optional shared Redis tier.
package cache

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
)

const (
	tierLocal = "local"
	tierRedis = "redis"
)

// Tiered reads the local tier first, then Redis, promoting Redis hits into
// the local tier. Writes go to both.
type Tiered struct {
	local   *WeakCache
	remote  *RedisCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTiered composes the tiers. remote and m may be nil.
func NewTiered(local *WeakCache, remote *RedisCache, m *metrics.Metrics) *Tiered {
	return &Tiered{
		local:   local,
		remote:  remote,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (t *Tiered) Get(ctx context.Context, key executor.CacheKey) (*executor.ResultSet, bool) {
	if rs, ok := t.local.Get(ctx, key); ok {
		t.hit(tierLocal)
		return rs, true
	}
	if t.remote != nil {
		if rs, ok := t.remote.Get(ctx, key); ok {
			t.local.Set(ctx, key, rs)
			t.hit(tierRedis)
			return rs, true
		}
	}
	if t.metrics != nil {
		t.metrics.CacheMissesTotal.Inc()
	}
	return nil, false
}

func (t *Tiered) Set(ctx context.Context, key executor.CacheKey, rs *executor.ResultSet) {
	t.local.Set(ctx, key, rs)
	if t.remote != nil {
		t.remote.Set(ctx, key, rs)
	}
}

func (t *Tiered) hit(tier string) {
	if t.metrics != nil {
		t.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

// InvalidateQuery drops one normalized query from both tiers.
func (t *Tiered) InvalidateQuery(ctx context.Context, query string) (int64, error) {
	removed := int64(t.local.InvalidateQuery(query))
	if t.remote != nil {
		n, err := t.remote.InvalidateQuery(ctx, query)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	t.logger.Info("query invalidated", "query", query, "removed", removed)
	return removed, nil
}

// Invalidate empties both tiers.
func (t *Tiered) Invalidate(ctx context.Context) (int64, error) {
	removed := int64(t.local.Invalidate())
	if t.remote != nil {
		n, err := t.remote.Invalidate(ctx)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	t.logger.Info("cache invalidated", "removed", removed)
	return removed, nil
}

// TierStats is the hit and miss count of one tier.
type TierStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries,omitempty"`
}

func newTierStats(hits, misses int64) TierStats {
	s := TierStats{Hits: hits, Misses: misses, Total: hits + misses}
	if s.Total > 0 {
		s.HitRate = float64(hits) / float64(s.Total)
	}
	return s
}

// Stats reports per-tier counters keyed by tier name.
func (t *Tiered) Stats() map[string]TierStats {
	out := make(map[string]TierStats, 2)
	local := newTierStats(t.local.Stats())
	local.Entries = t.local.Len()
	out[tierLocal] = local
	if t.remote != nil {
		out[tierRedis] = newTierStats(t.remote.Stats())
	}
	return out
}
