package analytics

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// maxLatencySamples bounds the latency window used for percentiles.
	maxLatencySamples = 10000
	// maxTrackedQueries bounds the distinct queries counted for top lists.
	// Queries first seen after the limit is reached are not counted.
	maxTrackedQueries = 10000
	defaultTopQueries = 10
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalDocIndexed   int64        `json:"total_docs_indexed"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	CorrectionCount   int64        `json:"correction_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`

	// TrackedQueries counts the distinct queries behind the top lists.
	// Once it reaches TrackedQueryLimit, searches for new queries only
	// add to UntrackedSearches.
	TrackedQueries    int   `json:"tracked_queries"`
	TrackedQueryLimit int   `json:"tracked_query_limit"`
	UntrackedSearches int64 `json:"untracked_searches"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps in-process search statistics. It is a Tracker, so the
// query path can feed it next to the Kafka collector.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	totalDocIndexed   atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	corrections       atomic.Int64
	untracked         atomic.Int64
	latencies         []int64
	nextLatency       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

func (a *Aggregator) Track(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearchEvent(e)
	case IndexEvent:
		a.totalDocIndexed.Add(1)
	default:
		a.logger.Debug("ignoring analytics event", "type", fmt.Sprintf("%T", event))
	}
}

func (a *Aggregator) recordSearchEvent(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.TotalMatches == 0 {
		a.zeroResults.Add(1)
	}
	if event.Correction != "" {
		a.corrections.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.nextLatency] = event.LatencyMs
		a.nextLatency = (a.nextLatency + 1) % maxLatencySamples
	}
	if !countQuery(a.queryCounts, event.Query) {
		a.untracked.Add(1)
	}
	if event.TotalMatches == 0 {
		countQuery(a.zeroResultQueries, event.Query)
	}
	a.mu.Unlock()
}

func (a *Aggregator) Stats() AggregatedStats {
	return a.TopStats(defaultTopQueries)
}

// TopStats is Stats with the top lists cut to n entries.
func (a *Aggregator) TopStats(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		TotalDocIndexed: a.totalDocIndexed.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		CorrectionCount: a.corrections.Load(),

		TrackedQueries:    len(a.queryCounts),
		TrackedQueryLimit: maxTrackedQueries,
		UntrackedSearches: a.untracked.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = Percentile(sorted, 50)
		stats.P95LatencyMs = Percentile(sorted, 95)
		stats.P99LatencyMs = Percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Percentile reads the pct-th percentile of an ascending slice.
func Percentile[T int64 | time.Duration](sorted []T, pct int) T {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// countQuery reports whether query was counted.
func countQuery(counts map[string]int64, query string) bool {
	if _, ok := counts[query]; ok || len(counts) < maxTrackedQueries {
		counts[query]++
		return true
	}
	return false
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Query, b.Query)
	})
	return result[:min(n, len(result))]
}
