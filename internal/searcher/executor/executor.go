// Package executor answers search requests: it plans the query, scans the
// pivot term's posting rows through the relevance and ranking stages on
// every store partition, merges the partitions into one page and falls back
// to spelling correction when nothing matches.
package executor

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/spell"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/tables"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/tracing"
)

// Result is one ranked document.
type Result struct {
	Rank     float64  `json:"rank"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords,omitempty"`
}

// ResultSet is one page of results. It is never modified after it is
// returned, so cached sets are shared between callers.
type ResultSet struct {
	Query        string   `json:"query"`
	Page         int      `json:"page"`
	PageSize     int      `json:"page_size"`
	Results      []Result `json:"results"`
	Correction   string   `json:"correction,omitempty"`
	TotalMatches int      `json:"total_matches"`
	ElapsedNanos int64    `json:"elapsed_nanos"`
	Cached       bool     `json:"cached"`
}

// CacheKey identifies a cached page. Generation is that of the tables
// snapshot the page was ranked with, so a page computed before a refresh is
// never served after it.
type CacheKey struct {
	Query      string
	Page       int
	PageSize   int
	Generation uint64
}

func (k CacheKey) String() string {
	return k.Query + "\x00" + strconv.FormatUint(k.Generation, 10) +
		"\x00" + strconv.Itoa(k.Page) + "\x00" + strconv.Itoa(k.PageSize)
}

// Cache stores non-empty result pages. A miss is never an error.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (*ResultSet, bool)
	Set(ctx context.Context, key CacheKey, rs *ResultSet)
}

type Options struct {
	MaxNGrams    int
	MaxPage      int
	MaxPageSize  int
	SuggestLimit int
	// ScanTimeout bounds a shared scan once it no longer follows the
	// caller that started it. Zero means no bound.
	ScanTimeout time.Duration
}

// Deps are the collaborators of an Executor. Store and Tables are
// required; the rest may be nil.
type Deps struct {
	Store     storage.Store
	Tables    *tables.Holder
	Suggester spell.Suggester
	Cache     Cache
	Metrics   *metrics.Metrics
	Tracer    *tracing.Tracer
	Tracker   analytics.Tracker
}

type Executor struct {
	deps   Deps
	opts   Options
	flight singleflight.Group
	logger *slog.Logger
}

func New(deps Deps, opts Options) *Executor {
	if opts.MaxNGrams <= 0 {
		opts.MaxNGrams = 3
	}
	if opts.SuggestLimit <= 0 {
		opts.SuggestLimit = 15
	}
	return &Executor{
		deps:   deps,
		opts:   opts,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Search returns page (1-based) of the results for query, pageSize
// entries per page, best first. Errors are reserved for invalid arguments
// and failed scans; a query that matches nothing returns an empty set with
// a possible correction.
func (e *Executor) Search(ctx context.Context, query string, page, pageSize int) (*ResultSet, error) {
	start := time.Now()
	if err := e.validate(page, pageSize); err != nil {
		e.observe("error", "", 0, start)
		return nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer e.deps.Tracer.Finish(span)
	span.SetAttr("query", query)
	span.SetAttr("page", page)

	snap := e.deps.Tables.Load()
	plan := parser.Parse(query, e.opts.MaxNGrams, snap.StopWords, snap.Sample)
	key := CacheKey{Query: plan.Normalized, Page: page, PageSize: pageSize, Generation: snap.Generation}

	if e.deps.Cache != nil {
		if cached, ok := e.deps.Cache.Get(ctx, key); ok {
			rs := *cached
			rs.Query = query
			rs.Cached = true
			rs.ElapsedNanos = time.Since(start).Nanoseconds()
			span.SetAttr("cache", "hit")
			e.observe("hit", "hit", len(rs.Results), start)
			e.track(ctx, plan, &rs, 0)
			return &rs, nil
		}
	}

	// Concurrent misses on the same page share one scan. The scan keeps the
	// values of the caller that started it but not its cancellation, so a
	// caller giving up never fails the others; each caller still stops
	// waiting when its own context ends.
	ch := e.flight.DoChan(key.String()+"\x00"+query, func() (any, error) {
		sctx, cancel := e.detach(ctx)
		defer cancel()
		return e.compute(sctx, plan, snap, key)
	})
	var shared singleflight.Result
	select {
	case shared = <-ch:
	case <-ctx.Done():
		e.observe("error", "miss", 0, start)
		return nil, storeError("waiting for scan", ctx.Err())
	}
	if shared.Err != nil {
		e.logger.Error("scan failed", "query", query, "pivot", plan.Pivot, "error", shared.Err)
		e.observe("error", "miss", 0, start)
		return nil, shared.Err
	}
	res := shared.Val.(*computed)
	rs := *res.rs
	rs.Query = query
	rs.ElapsedNanos = time.Since(start).Nanoseconds()

	outcome := "miss"
	if rs.TotalMatches == 0 {
		outcome = "zero_result"
	}
	e.observe(outcome, "miss", len(rs.Results), start)
	e.track(ctx, plan, &rs, res.partitions)

	logger.FromContext(ctx).Debug("query executed",
		"query", query,
		"pivot", plan.Pivot,
		"terms", len(plan.Terms),
		"total_matches", rs.TotalMatches,
		"returned", len(rs.Results),
		"partitions", res.partitions,
	)
	return &rs, nil
}

type computed struct {
	rs         *ResultSet
	partitions int
}

func (e *Executor) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if e.opts.ScanTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.ScanTimeout)
	}
	return context.WithCancel(ctx)
}

// compute scans, corrects and caches one page. The returned set is shared
// by every caller collapsed onto the same scan.
func (e *Executor) compute(ctx context.Context, plan *parser.QueryPlan, snap *tables.Snapshot, key CacheKey) (*computed, error) {
	page, pageSize := key.Page, key.PageSize
	rs := &ResultSet{Query: plan.RawQuery, Page: page, PageSize: pageSize, Results: []Result{}}
	out := &computed{rs: rs}
	if plan.HasPivot() {
		tracing.SpanFromContext(ctx).SetAttr("pivot", plan.Pivot)
		scanned, err := e.scan(ctx, plan, snap, page, pageSize)
		if err != nil {
			return nil, err
		}
		out.partitions = scanned.partitions
		rs.TotalMatches = scanned.total
		rs.Results = toResults(scanned.page)
	}
	if rs.TotalMatches == 0 {
		rs.Correction = e.correct(ctx, plan.RawQuery, snap)
	} else if e.deps.Cache != nil {
		e.deps.Cache.Set(ctx, key, rs)
	}
	return out, nil
}

func (e *Executor) validate(page, pageSize int) error {
	switch {
	case page < 1:
		return apperrors.Invalidf("page must be at least 1, got %d", page)
	case pageSize < 1:
		return apperrors.Invalidf("page size must be at least 1, got %d", pageSize)
	case e.opts.MaxPage > 0 && page > e.opts.MaxPage:
		return apperrors.Invalidf("page must be at most %d, got %d", e.opts.MaxPage, page)
	case e.opts.MaxPageSize > 0 && pageSize > e.opts.MaxPageSize:
		return apperrors.Invalidf("page size must be at most %d, got %d", e.opts.MaxPageSize, pageSize)
	}
	return nil
}

func (e *Executor) correct(ctx context.Context, query string, snap *tables.Snapshot) string {
	if e.deps.Suggester == nil {
		return ""
	}
	ctx, span := tracing.StartChildSpan(ctx, "suggest")
	defer span.End()
	correction := spell.Correct(ctx, query, snap.Sample, e.deps.Suggester, e.opts.SuggestLimit)
	span.SetAttr("correction", correction)
	if m := e.deps.Metrics; m != nil {
		m.CorrectionsTotal.WithLabelValues(strconv.FormatBool(correction != "")).Inc()
	}
	return correction
}

// toResults converts a worst-first page into best-first results.
func toResults(page []candidate) []Result {
	out := make([]Result, 0, len(page))
	for _, c := range slices.Backward(page) {
		id := posting.ParseDocumentID(c.Key.Group)
		out = append(out, Result{Rank: c.Rank, URL: id.URL, Title: id.Title, Keywords: id.Keywords})
	}
	return out
}

func (e *Executor) observe(outcome, cacheStatus string, returned int, start time.Time) {
	m := e.deps.Metrics
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	if cacheStatus != "" {
		m.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
		m.SearchResultsCount.Observe(float64(returned))
	}
}

func (e *Executor) track(ctx context.Context, plan *parser.QueryPlan, rs *ResultSet, partitions int) {
	if e.deps.Tracker == nil {
		return
	}
	eventType := analytics.EventSearch
	switch {
	case rs.Cached:
		eventType = analytics.EventCacheHit
	case rs.TotalMatches == 0:
		eventType = analytics.EventZeroResult
	}
	e.deps.Tracker.Track(analytics.SearchEvent{
		Type:         eventType,
		Query:        plan.Normalized,
		Pivot:        plan.Pivot,
		Page:         rs.Page,
		PageSize:     rs.PageSize,
		TotalMatches: rs.TotalMatches,
		Returned:     len(rs.Results),
		Correction:   rs.Correction,
		LatencyMs:    time.Duration(rs.ElapsedNanos).Milliseconds(),
		CacheHit:     rs.Cached,
		Partitions:   partitions,
		Timestamp:    time.Now().UTC(),
		RequestID:    logger.RequestID(ctx),
	})
}
