// Package refresh keeps a running searcher in step with the offline jobs
// that rebuild its ranking tables: it reloads tables, re-indexes the
// suggestion vocabulary and drops stale cached pages when told to over
// Kafka.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/tables"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
)

// TablesRefreshEvent is published when new sample or authority tables are
// available.
type TablesRefreshEvent struct {
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheInvalidateEvent drops cached pages of Query, or all of them when
// Query is empty.
type CacheInvalidateEvent struct {
	Query string `json:"query,omitempty"`
}

type Invalidator interface {
	InvalidateQuery(ctx context.Context, query string) (int64, error)
	Invalidate(ctx context.Context) (int64, error)
}

// Rebuilder re-indexes the suggestion vocabulary.
type Rebuilder interface {
	Rebuild(words []string) error
}

type Refresher struct {
	loader    tables.Loader
	holder    *tables.Holder
	cache     Invalidator
	suggester Rebuilder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds a Refresher. cache, suggester and m may be nil.
func New(loader tables.Loader, holder *tables.Holder, cache Invalidator, suggester Rebuilder, m *metrics.Metrics) *Refresher {
	return &Refresher{
		loader:    loader,
		holder:    holder,
		cache:     cache,
		suggester: suggester,
		metrics:   m,
		logger:    slog.Default().With("component", "tables-refresh"),
	}
}

// Refresh reloads the tables and, once the new snapshot is live, rebuilds
// the suggester and empties the cache. A failed load keeps the current
// snapshot and leaves the cache alone.
func (r *Refresher) Refresh(ctx context.Context) error {
	snap, err := tables.Reload(ctx, r.loader, r.holder)
	if err != nil {
		r.count("failed")
		return fmt.Errorf("reloading tables: %w", err)
	}
	if r.suggester != nil {
		// a stale vocabulary only degrades corrections
		if err := r.suggester.Rebuild(snap.Sample.Words()); err != nil {
			r.logger.Warn("suggester rebuild failed", "error", err)
		}
	}
	if r.cache != nil {
		removed, err := r.cache.Invalidate(ctx)
		if err != nil {
			r.logger.Warn("cache invalidation after refresh failed", "error", err)
		} else {
			r.logger.Info("cache invalidated after refresh", "removed", removed)
		}
	}
	r.count("ok")
	return nil
}

func (r *Refresher) count(status string) {
	if r.metrics != nil {
		r.metrics.TablesRefreshTotal.WithLabelValues(status).Inc()
	}
}

// HandleTablesRefresh returns the handler for the tables-refresh topic.
// Undecodable messages are logged and skipped.
func (r *Refresher) HandleTablesRefresh() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[TablesRefreshEvent](value)
		if err != nil {
			r.logger.Error("failed to decode refresh event", "error", err, "key", string(key))
			return nil
		}
		r.logger.Info("tables refresh requested", "reason", event.Reason, "published_at", event.Timestamp)
		return r.Refresh(ctx)
	}
}

// HandleCacheInvalidate returns the handler for the cache-invalidate topic.
func (r *Refresher) HandleCacheInvalidate() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		if r.cache == nil {
			return nil
		}
		event, err := kafka.DecodeJSON[CacheInvalidateEvent](value)
		if err != nil {
			r.logger.Error("failed to decode invalidate event", "error", err, "key", string(key))
			return nil
		}
		var removed int64
		if q := parser.Normalize(event.Query); q != "" {
			removed, err = r.cache.InvalidateQuery(ctx, q)
		} else {
			removed, err = r.cache.Invalidate(ctx)
		}
		if err != nil {
			return fmt.Errorf("invalidating cache: %w", err)
		}
		r.logger.Info("cache invalidated", "query", event.Query, "removed", removed)
		return nil
	}
}
