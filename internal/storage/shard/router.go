// Package shard partitions the posting store across several local engines.
// Cells are routed by a hash of their document group, so every row group of
// a document lives in exactly one shard and per-shard scans see complete
// term vectors.
package shard

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage/engine"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
)

// Router maps shard IDs to dedicated engines and implements storage.Store
// with one partition per shard.
type Router struct {
	engines   []*engine.Engine
	numShards int
	logger    *slog.Logger
}

// NewRouter creates numShards engines, each in its own sub-directory under
// baseCfg.DataDir.
func NewRouter(baseCfg engine.Config, numShards int, m *metrics.Metrics) (*Router, error) {
	if numShards < 1 {
		return nil, fmt.Errorf("numShards must be >= 1, got %d", numShards)
	}
	r := &Router{
		engines:   make([]*engine.Engine, 0, numShards),
		numShards: numShards,
		logger:    slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < numShards; i++ {
		shardCfg := baseCfg
		shardCfg.DataDir = filepath.Join(baseCfg.DataDir, fmt.Sprintf("shard-%d", i))
		e, err := engine.New(shardCfg, m)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines = append(r.engines, e)
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r, nil
}

// ShardFor returns the shard owning a document group.
func (r *Router) ShardFor(group string) int {
	h := fnv.New32a()
	h.Write([]byte(group))
	return int(h.Sum32() % uint32(r.numShards))
}

// Route returns the engine responsible for the given shard ID.
func (r *Router) Route(shardID int) (*engine.Engine, error) {
	if shardID < 0 || shardID >= r.numShards {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, r.numShards-1)
	}
	return r.engines[shardID], nil
}

// Write splits entries by shard and writes each batch to its engine.
func (r *Router) Write(ctx context.Context, entries []storage.Entry) error {
	batches := make(map[int][]storage.Entry)
	for _, e := range entries {
		id := r.ShardFor(e.Key.Group)
		batches[id] = append(batches[id], e)
	}
	for id, batch := range batches {
		if err := r.engines[id].Write(ctx, batch); err != nil {
			return fmt.Errorf("writing shard %d: %w", id, err)
		}
	}
	return nil
}

// Delete routes keys the same way Write routes cells.
func (r *Router) Delete(ctx context.Context, keys []storage.Key) error {
	batches := make(map[int][]storage.Key)
	for _, k := range keys {
		id := r.ShardFor(k.Group)
		batches[id] = append(batches[id], k)
	}
	for id, batch := range batches {
		if err := r.engines[id].Delete(ctx, batch); err != nil {
			return fmt.Errorf("deleting from shard %d: %w", id, err)
		}
	}
	return nil
}

// Cursors returns one merged cursor per shard.
func (r *Router) Cursors(ctx context.Context) ([]storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cursors := make([]storage.Cursor, len(r.engines))
	for i, e := range r.engines {
		cursors[i] = e.Cursor()
	}
	return cursors, nil
}

func (r *Router) Ping(ctx context.Context) error {
	for i, e := range r.engines {
		if err := e.Ping(ctx); err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}
	return nil
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// StartFlushLoops starts the periodic flush of every shard.
func (r *Router) StartFlushLoops(ctx context.Context) {
	for _, e := range r.engines {
		e.StartFlushLoop(ctx)
	}
}

// FlushAll flushes every shard engine to disk.
func (r *Router) FlushAll() error {
	var errs []error
	for id, e := range r.engines {
		if err := e.Flush(); err != nil {
			r.logger.Error("flush failed", "shard_id", id, "error", err)
			errs = append(errs, fmt.Errorf("shard %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	return r.closeAll()
}

func (r *Router) closeAll() error {
	var errs []error
	for id, e := range r.engines {
		if err := e.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
