package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
)

// DefaultRowBuckets is the number of row suffixes a term's postings are
// spread over.
const DefaultRowBuckets = 16

// urlLocks is the number of stripes serializing re-ingests of one URL.
const urlLocks = 64

// Indexer writes the posting rows of one document at a time. Every
// document's keys are recorded in a manifest cell, so indexing a URL again
// removes the cells the new version no longer has.
type Indexer struct {
	locks   [urlLocks]sync.Mutex
	store   storage.Store
	maxN    int
	buckets int
	metrics *metrics.Metrics
	tracker analytics.Tracker
	logger  *slog.Logger
}

// NewIndexer builds an Indexer. m and tracker may be nil.
func NewIndexer(store storage.Store, maxN, buckets int, m *metrics.Metrics, tracker analytics.Tracker) *Indexer {
	if buckets <= 0 {
		buckets = DefaultRowBuckets
	}
	return &Indexer{
		store:   store,
		maxN:    maxN,
		buckets: buckets,
		metrics: m,
		tracker: tracker,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// Index validates ev and writes its rows, replacing whatever an earlier
// version of the same URL left behind. It returns the number of rows
// written.
func (ix *Indexer) Index(ctx context.Context, ev *IngestEvent) (int, error) {
	if err := Validate(ev); err != nil {
		return 0, err
	}
	start := time.Now()
	mu := &ix.locks[ix.bucket(ev.URL)%urlLocks]
	mu.Lock()
	defer mu.Unlock()

	rows := posting.BuildRows(ev.document(), ix.maxN, ix.suffix(ev.URL))
	prev, err := ix.manifest(ctx, ev.URL)
	if err != nil {
		return 0, fmt.Errorf("reading manifest of %s: %w", ev.URL, err)
	}
	// Stale cells go first: until the new manifest lands, a retry still
	// finds the old one and repeats the cleanup.
	if stale := staleKeys(prev, rows); len(stale) > 0 {
		if len(rows) == 0 {
			stale = append(stale, posting.ManifestKey(ev.URL))
		}
		if err := ix.store.Delete(ctx, stale); err != nil {
			return 0, fmt.Errorf("deleting %d stale rows for %s: %w", len(stale), ev.URL, err)
		}
		ix.logger.Debug("stale rows removed", "url", ev.URL, "rows", len(stale))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	manifest, err := posting.NewManifest(rows).Entry(ev.URL)
	if err != nil {
		return 0, err
	}
	if err := ix.store.Write(ctx, append(rows, manifest)); err != nil {
		return 0, fmt.Errorf("writing %d rows for %s: %w", len(rows), ev.URL, err)
	}

	if ix.metrics != nil {
		ix.metrics.RowsWrittenTotal.Add(float64(len(rows)))
		ix.metrics.DocsIndexedTotal.Inc()
	}
	latency := time.Since(start)
	if ix.tracker != nil {
		ix.tracker.Track(analytics.IndexEvent{
			Type:      analytics.EventIndexDoc,
			URL:       ev.URL,
			Terms:     distinctQualifiers(rows),
			Rows:      len(rows),
			LatencyMs: latency.Milliseconds(),
			Timestamp: time.Now().UTC(),
		})
	}
	ix.logger.Debug("document indexed", "url", ev.URL, "rows", len(rows), "latency", latency)
	return len(rows), nil
}

// bucket hashes url. Its remainder by the bucket count is the row suffix,
// which keeps every row of a document under one suffix so a re-ingest
// overwrites the cells it shares with the previous version.
func (ix *Indexer) bucket(url string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(url))
	return h.Sum32()
}

func (ix *Indexer) suffix(url string) string {
	return fmt.Sprintf("%02x", ix.bucket(url)%uint32(ix.buckets))
}

// manifest returns the manifest recorded for url, nil when there is none.
// An unreadable manifest is logged and treated as missing.
func (ix *Indexer) manifest(ctx context.Context, url string) (*posting.Manifest, error) {
	cursors, err := ix.store.Cursors(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, c := range cursors {
			c.Close()
		}
	}()
	for _, c := range cursors {
		if err := c.Seek(ctx, posting.ManifestRange(url)); err != nil {
			return nil, err
		}
		if c.Next() {
			m, err := posting.DecodeManifest(c.Value())
			if err != nil {
				ix.logger.Warn("ignoring unreadable manifest", "url", url, "error", err)
				return nil, nil
			}
			return &m, nil
		}
		if err := c.Err(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// staleKeys lists the keys of prev that rows no longer write.
func staleKeys(prev *posting.Manifest, rows []storage.Entry) []storage.Key {
	if prev == nil {
		return nil
	}
	fresh := make(map[storage.Key]struct{}, len(rows))
	for _, r := range rows {
		fresh[r.Key] = struct{}{}
	}
	var stale []storage.Key
	for _, k := range prev.Keys() {
		if _, ok := fresh[k]; !ok {
			stale = append(stale, k)
		}
	}
	return stale
}

func distinctQualifiers(rows []storage.Entry) int {
	seen := make(map[string]struct{})
	for _, r := range rows {
		seen[r.Key.Qualifier] = struct{}{}
	}
	return len(seen)
}
