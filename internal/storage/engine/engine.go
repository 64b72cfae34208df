// Package engine is the local ordered posting store: writes land in a
// memtable, which is flushed to immutable .spdx segments, and scans merge
// the memtable with every segment.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage/memtable"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage/segment"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
)

// Config tunes a single engine.
type Config struct {
	DataDir        string
	SegmentMaxSize int64
	FlushInterval  time.Duration
}

type Engine struct {
	mem      *memtable.MemTable
	writer   *segment.Writer
	readers  []*segment.Reader
	readerMu sync.RWMutex
	// writeMu is held shared by writers and exclusively by Flush so no
	// write lands between the flush snapshot and the memtable reset.
	writeMu  sync.RWMutex
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New opens (or creates) an engine in cfg.DataDir and loads any segments
// already there. m may be nil.
func New(cfg Config, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage data directory: %w", err)
	}
	e := &Engine{
		mem:     memtable.New(),
		writer:  segment.NewWriter(cfg.DataDir),
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "storage-engine", "data_dir", cfg.DataDir),
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// Write adds entries to the memtable and flushes when it grows past the
// configured segment size.
func (e *Engine) Write(ctx context.Context, entries []storage.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.writeMu.RLock()
	e.mem.Put(entries)
	e.writeMu.RUnlock()
	if e.metrics != nil {
		e.metrics.RowsWrittenTotal.Add(float64(len(entries)))
	}
	if e.cfg.SegmentMaxSize > 0 && e.mem.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memtable reached max size, flushing to disk",
			"size", e.mem.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memtable: %w", err)
		}
	}
	return nil
}

// Delete writes tombstones for keys. They shadow cells in every segment
// flushed before them.
func (e *Engine) Delete(ctx context.Context, keys []storage.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.writeMu.RLock()
	e.mem.Delete(keys)
	e.writeMu.RUnlock()
	return nil
}

// Cursor returns a merged cursor over the memtable and all segments, newest
// data taking precedence.
func (e *Engine) Cursor() storage.Cursor {
	e.readerMu.RLock()
	sources := make([]storage.Cursor, 0, len(e.readers)+1)
	sources = append(sources, e.mem.Cursor())
	for i := len(e.readers) - 1; i >= 0; i-- {
		sources = append(sources, e.readers[i].Cursor())
	}
	e.readerMu.RUnlock()
	return storage.NewLiveMergeCursor(sources...)
}

// Cursors implements storage.Store with a single partition.
func (e *Engine) Cursors(ctx context.Context) ([]storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []storage.Cursor{e.Cursor()}, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if _, err := os.Stat(e.cfg.DataDir); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	return ctx.Err()
}

// Flush writes the memtable to a new segment. The memtable is only reset
// after the segment is readable, so scans never miss data.
func (e *Engine) Flush() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snapshot := e.mem.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	segmentName, err := e.writer.Write(snapshot)
	if err != nil {
		e.observeFlush("error")
		return fmt.Errorf("writing segment: %w", err)
	}

	segPath := filepath.Join(e.cfg.DataDir, segmentName)
	reader, err := segment.OpenReader(segPath)
	if err != nil {
		e.observeFlush("error")
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	active := len(e.readers)
	e.mem.Reset()
	e.readerMu.Unlock()
	e.observeFlush("ok")
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"rows", reader.Rows(),
		"cells", reader.Entries(),
		"docs", reader.GroupCount(),
		"active_segments", active,
	)
	return nil
}

func (e *Engine) observeFlush(status string) {
	if e.metrics != nil {
		e.metrics.SegmentFlushesTotal.WithLabelValues(status).Inc()
	}
}

// Segments returns the number of open segments.
func (e *Engine) Segments() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.readers)
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.mem.Len() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	return nil
}

func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		e.logger.Info("loaded existing segment",
			"segment", name,
			"rows", reader.Rows(),
			"docs", reader.GroupCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}
