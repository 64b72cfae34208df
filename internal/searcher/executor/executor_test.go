package executor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/tables"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
)

// memStore spreads documents over partitions by group hash.
type memStore struct {
	parts [][]storage.Entry
	err   error
}

func (s *memStore) Cursors(context.Context) ([]storage.Cursor, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]storage.Cursor, len(s.parts))
	for i, p := range s.parts {
		out[i] = storage.NewSliceCursor(p)
	}
	return out, nil
}

func (s *memStore) Write(_ context.Context, entries []storage.Entry) error {
	for _, e := range entries {
		h := fnv.New32a()
		h.Write([]byte(e.Key.Group))
		i := int(h.Sum32() % uint32(len(s.parts)))
		s.parts[i] = append(s.parts[i], e)
	}
	for _, p := range s.parts {
		storage.SortEntries(p)
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, keys []storage.Key) error {
	drop := make(map[storage.Key]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	for i, p := range s.parts {
		s.parts[i] = slices.DeleteFunc(p, func(e storage.Entry) bool { return drop[e.Key] })
	}
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error                { return nil }

type fixture struct {
	store   *memStore
	holder  *tables.Holder
	counts  map[string]int64
	authMap map[string]float64
}

func newFixture(partitions int) *fixture {
	return &fixture{
		store:   &memStore{parts: make([][]storage.Entry, partitions)},
		counts:  map[string]int64{},
		authMap: map[string]float64{},
	}
}

func (f *fixture) add(t testing.TB, url, body string, authority float64) {
	t.Helper()
	doc := posting.Document{ID: posting.DocumentID{URL: url, Title: "title " + url, Keywords: []string{"kw"}}, Body: body}
	require.NoError(t, f.store.Write(context.Background(), posting.BuildRows(doc, 3, "1")))
	for term := range tokenizer.TermFrequencies(tokenizer.NGrams(body, 3)) {
		f.counts[term]++
	}
	f.counts[tables.TotalDocsKey]++
	f.authMap[url] = authority
}

func (f *fixture) tables() *tables.Holder {
	counts := make(map[string]int64, len(f.counts))
	for k, v := range f.counts {
		counts[k] = v
	}
	auth := make(map[string]float64, len(f.authMap))
	for k, v := range f.authMap {
		auth[k] = v
	}
	return tables.NewHolder(&tables.Snapshot{
		Sample:    tables.NewSample(counts),
		Authority: tables.NewAuthority(auth),
		StopWords: tokenizer.DefaultStopWords,
	})
}

func (f *fixture) executor(deps Deps) *Executor {
	deps.Store = f.store
	deps.Tables = f.tables()
	return New(deps, Options{MaxNGrams: 3, MaxPage: 100, MaxPageSize: 100, SuggestLimit: 15})
}

type mapCache struct {
	mu   sync.Mutex
	m    map[string]*ResultSet
	sets int
}

func (c *mapCache) Get(_ context.Context, key CacheKey) (*ResultSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.m[key.String()]
	return rs, ok
}

func (c *mapCache) Set(_ context.Context, key CacheKey, rs *ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string]*ResultSet{}
	}
	c.m[key.String()] = rs
	c.sets++
}

// gatedStore holds Cursors until release is closed or the scan context
// ends.
type gatedStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Cursors(ctx context.Context) ([]storage.Cursor, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return s.memStore.Cursors(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// missSignal reports every cache lookup on looked.
type missSignal struct {
	mapCache
	looked chan struct{}
}

func (c *missSignal) Get(ctx context.Context, key CacheKey) (*ResultSet, bool) {
	rs, ok := c.mapCache.Get(ctx, key)
	c.looked <- struct{}{}
	return rs, ok
}

type stubSuggester map[string][]string

func (s stubSuggester) Suggest(_ context.Context, term string, _ int) ([]string, error) {
	return s[term], nil
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (r *recorder) Track(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := event.(analytics.SearchEvent); ok {
		r.events = append(r.events, e)
	}
}

func TestSearchConjunctiveAndOrdered(t *testing.T) {
	f := newFixture(3)
	f.add(t, "http://a.example", "red fish swim in the blue sea", 1)
	f.add(t, "http://b.example", "a red car and a blue fish", 5)
	f.add(t, "http://c.example", "red fish red fish", 0)
	f.add(t, "http://d.example", "green fish", 10)
	f.add(t, "http://e.example", "the red fish market", 2)

	rs, err := f.executor(Deps{}).Search(context.Background(), "Red Fish", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, rs.TotalMatches)
	require.Len(t, rs.Results, 3)

	var urls []string
	for i, r := range rs.Results {
		urls = append(urls, r.URL)
		assert.GreaterOrEqual(t, r.Rank, 0.0)
		assert.LessOrEqual(t, r.Rank, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, rs.Results[i-1].Rank, r.Rank)
		}
		assert.Equal(t, "title "+r.URL, r.Title)
		assert.Equal(t, []string{"kw"}, r.Keywords)
	}
	assert.ElementsMatch(t, []string{"http://a.example", "http://c.example", "http://e.example"}, urls)
	assert.Empty(t, rs.Correction)
	assert.Positive(t, rs.ElapsedNanos)
}

func TestSearchPaginationConsistency(t *testing.T) {
	f := newFixture(4)
	for i := range 29 {
		body := fmt.Sprintf("apple pie %s", strings.Repeat("filler ", i%6))
		f.add(t, fmt.Sprintf("http://site%02d.example/%s", i, strings.Repeat("x", i%3)), body, float64(i%4))
	}
	e := f.executor(Deps{})
	ctx := context.Background()

	for _, size := range []int{3, 5, 7} {
		var concat []Result
		for page := 1; ; page++ {
			rs, err := e.Search(ctx, "apple pie", page, size)
			require.NoError(t, err)
			assert.Equal(t, 29, rs.TotalMatches)
			if len(rs.Results) == 0 {
				break
			}
			concat = append(concat, rs.Results...)
		}
		whole, err := e.Search(ctx, "apple pie", 1, 30)
		require.NoError(t, err)
		assert.Equal(t, whole.Results, concat, "page size %d", size)
	}
}

func TestSearchDeterministicAndCached(t *testing.T) {
	f := newFixture(2)
	for i := range 12 {
		f.add(t, fmt.Sprintf("http://%d.example", i), "go search engine", 1)
	}
	cache := &mapCache{}
	e := f.executor(Deps{Cache: cache})
	ctx := context.Background()

	first, err := e.Search(ctx, "go search", 2, 5)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.sets)

	second, err := e.Search(ctx, "GO   search!", 2, 5)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "GO   search!", second.Query)
	assert.Equal(t, first.Results, second.Results)

	uncached := f.executor(Deps{})
	for range 3 {
		again, err := uncached.Search(ctx, "go search", 2, 5)
		require.NoError(t, err)
		assert.Equal(t, first.Results, again.Results)
	}
}

func TestSearchZeroResultsFallback(t *testing.T) {
	f := newFixture(1)
	f.add(t, "http://a.example", "apple pie recipe", 1)
	cache := &mapCache{}
	rec := &recorder{}
	e := f.executor(Deps{
		Cache:     cache,
		Suggester: stubSuggester{"appel": {"apple"}, "peach": {"pear"}},
		Tracker:   rec,
	})
	ctx := context.Background()

	tests := []struct {
		name       string
		query      string
		correction string
	}{
		{"out of vocabulary with suggestion", "appel", "apple"},
		{"out of vocabulary partly known", "appel pie", "apple pie"},
		{"no usable suggestion", "peach", ""},
		{"only stop words", "the and", ""},
		{"known words without conjunctive match", "pie apple recipe tart", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := e.Search(ctx, tt.query, 1, 10)
			require.NoError(t, err)
			assert.Zero(t, rs.TotalMatches)
			assert.Empty(t, rs.Results)
			assert.NotNil(t, rs.Results)
			assert.Equal(t, tt.correction, rs.Correction)
		})
	}
	assert.Zero(t, cache.sets, "empty pages are never cached")
	require.Len(t, rec.events, len(tests))
	assert.Equal(t, analytics.EventZeroResult, rec.events[0].Type)
}

func TestSearchInvalidArguments(t *testing.T) {
	e := newFixture(1).executor(Deps{})
	for _, tc := range []struct{ page, size int }{{0, 10}, {1, 0}, {101, 10}, {1, 101}} {
		_, err := e.Search(context.Background(), "go", tc.page, tc.size)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
	}
}

func TestSearchStoreFailure(t *testing.T) {
	f := newFixture(1)
	f.add(t, "http://a.example", "apple pie", 1)
	f.store.err = errors.New("connection refused")
	_, err := f.executor(Deps{}).Search(context.Background(), "apple", 1, 10)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestSearchSkipsCorruptRows(t *testing.T) {
	f := newFixture(1)
	f.add(t, "http://a.example", "apple pie", 1)
	f.add(t, "http://b.example", "apple pie", 1)
	for i, e := range f.store.parts[0] {
		if posting.URLOf(e.Key.Group) == "http://b.example" && e.Key.Qualifier == "pie" {
			f.store.parts[0][i].Value = []byte("not-a-value")
		}
	}
	rs, err := f.executor(Deps{}).Search(context.Background(), "apple pie", 1, 10)
	require.NoError(t, err)
	// b still holds both terms; only the ratio of its "pie" cell is lost
	assert.Equal(t, 2, rs.TotalMatches)
	require.Len(t, rs.Results, 2)
	urls := []string{rs.Results[0].URL, rs.Results[1].URL}
	assert.ElementsMatch(t, []string{"http://a.example", "http://b.example"}, urls)
}

func TestSearchSharedScanOutlivesCancelledCaller(t *testing.T) {
	f := newFixture(1)
	f.add(t, "http://a.example", "apple pie", 1)
	store := &gatedStore{memStore: f.store, entered: make(chan struct{}, 1), release: make(chan struct{})}
	cache := &missSignal{looked: make(chan struct{}, 2)}
	e := f.executor(Deps{Cache: cache})
	e.deps.Store = store

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := e.Search(ctxA, "apple pie", 1, 10)
		errA <- err
	}()
	<-cache.looked
	<-store.entered

	type outcome struct {
		rs  *ResultSet
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		rs, err := e.Search(context.Background(), "apple pie", 1, 10)
		resB <- outcome{rs, err}
	}()
	<-cache.looked

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, 504, apperrors.HTTPStatusCode(err))

	close(store.release)
	got := <-resB
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.rs.TotalMatches)
}

func TestSearchScanTimeout(t *testing.T) {
	f := newFixture(1)
	f.add(t, "http://a.example", "apple pie", 1)
	e := f.executor(Deps{})
	e.opts.ScanTimeout = 20 * time.Millisecond
	e.deps.Store = &gatedStore{memStore: f.store, entered: make(chan struct{}, 1), release: make(chan struct{})}

	_, err := e.Search(context.Background(), "apple pie", 1, 10)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.NotErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestSearchStoreContextErrorsAreTimeouts(t *testing.T) {
	for _, cause := range []error{
		context.DeadlineExceeded,
		fmt.Errorf("dialing shard: %w", context.Canceled),
	} {
		f := newFixture(1)
		f.add(t, "http://a.example", "apple pie", 1)
		f.store.err = cause
		_, err := f.executor(Deps{}).Search(context.Background(), "apple", 1, 10)
		assert.ErrorIs(t, err, apperrors.ErrTimeout)
		assert.Equal(t, 504, apperrors.HTTPStatusCode(err))
	}
}

func TestSearchCacheFollowsTablesGeneration(t *testing.T) {
	f := newFixture(1)
	f.add(t, "http://a.example", "apple pie", 1)
	cache := &mapCache{}
	e := f.executor(Deps{Cache: cache})
	ctx := context.Background()

	first, err := e.Search(ctx, "apple", 1, 10)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	again, err := e.Search(ctx, "apple", 1, 10)
	require.NoError(t, err)
	assert.True(t, again.Cached)

	// a page stored under the previous snapshot is not served after a swap
	e.deps.Tables.Swap(f.tables().Load())
	fresh, err := e.Search(ctx, "apple", 1, 10)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, 2, cache.sets)
}
