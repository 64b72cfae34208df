package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
)

type sample map[string]int64

func (s sample) DocFrequency(term string) (int64, bool) {
	c, ok := s[term]
	return c, ok
}

func (s sample) TotalDocs() int64 { return 100 }

type authority map[string]float64

func (a authority) Normalized(url string) float64 { return a[url] }

func corpus(docs ...posting.Document) []storage.Entry {
	var entries []storage.Entry
	for _, d := range docs {
		entries = append(entries, posting.BuildRows(d, 3, "1")...)
	}
	storage.SortEntries(entries)
	return entries
}

func doc(url, body string) posting.Document {
	return posting.Document{ID: posting.DocumentID{URL: url, Title: url}, Body: body}
}

func relevanceFor(query string, stats *Stats) RelevanceOptions {
	terms := tokenizer.NGrams(query, 3)
	return RelevanceOptions{
		Terms:       terms,
		QueryRatios: tokenizer.TermRatios(tokenizer.TermFrequencies(terms), query),
		Frequencies: sample{"red": 5, "fish": 40, "blue": 30, "red fish": 3},
		Authority:   authority{"http://a": 1, "http://b": 0.2},
		Stats:       stats,
	}
}

func scan(t *testing.T, c storage.Cursor, r storage.Range) []storage.Entry {
	t.Helper()
	require.NoError(t, c.Seek(context.Background(), r))
	out, err := storage.Collect(c)
	require.NoError(t, err)
	return out
}

func TestRelevanceConjunctiveMatch(t *testing.T) {
	entries := corpus(
		doc("http://a", "red fish blue fish"),
		doc("http://b", "red blue fish"),
		doc("http://c", "blue fish"),
		doc("http://d", "one red fish"),
	)
	var stats Stats
	c := Chain(storage.NewSliceCursor(entries), Relevance(relevanceFor("red fish", &stats)))
	got := scan(t, c, posting.TermRange("red"))

	var urls []string
	for _, e := range got {
		urls = append(urls, posting.URLOf(e.Key.Group))
		assert.Equal(t, "red", posting.TermOf(e.Key.Row))
		rank, err := DecodeRank(e.Value)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rank, 0.0)
		assert.LessOrEqual(t, rank, 1.0)
	}
	// b lacks the bigram, c has no "red" row at all
	assert.Equal(t, []string{"http://a", "http://d"}, urls)
	assert.EqualValues(t, 3, stats.Groups)
	assert.EqualValues(t, 2, stats.Matches)
}

func TestRelevanceFirstNextDoesNotAdvance(t *testing.T) {
	entries := corpus(doc("http://a", "red fish"), doc("http://d", "red fish"))
	c := Chain(storage.NewSliceCursor(entries), Relevance(relevanceFor("red", nil)))
	require.NoError(t, c.Seek(context.Background(), posting.TermRange("red")))
	assert.Equal(t, "http://a", posting.URLOf(c.Key().Group))
	require.True(t, c.Next())
	assert.Equal(t, "http://a", posting.URLOf(c.Key().Group))
	require.True(t, c.Next())
	assert.Equal(t, "http://d", posting.URLOf(c.Key().Group))
	assert.False(t, c.Next())
	assert.False(t, c.Next())
	assert.Equal(t, storage.Key{}, c.Key())
	assert.Nil(t, c.Value())
}

func TestRelevanceSkipsCorruptRows(t *testing.T) {
	entries := corpus(doc("http://a", "red fish"), doc("http://d", "red fish"))
	for i := range entries {
		if posting.URLOf(entries[i].Key.Group) == "http://a" && entries[i].Key.Qualifier == "fish" {
			entries[i].Value = []byte("garbage")
		}
	}
	var stats Stats
	c := Chain(storage.NewSliceCursor(entries), Relevance(relevanceFor("red", &stats)))
	got := scan(t, c, posting.TermRange("red"))

	require.Len(t, got, 2)
	assert.Positive(t, stats.Corrupt)
}

func TestRelevanceCorruptRequiredTermStillMatches(t *testing.T) {
	entries := corpus(doc("http://a", "red fish"), doc("http://d", "red fish"))
	for i := range entries {
		if posting.URLOf(entries[i].Key.Group) == "http://a" && entries[i].Key.Qualifier == "fish" {
			entries[i].Value = []byte("garbage")
		}
	}
	var stats Stats
	c := Chain(storage.NewSliceCursor(entries), Relevance(relevanceFor("red fish", &stats)))
	got := scan(t, c, posting.TermRange("red"))

	require.Len(t, got, 2)
	assert.Equal(t, "http://a", posting.URLOf(got[0].Key.Group))
	assert.EqualValues(t, 2, stats.Matches)
	assert.Positive(t, stats.Corrupt)
}

func TestRelevanceEmptySource(t *testing.T) {
	c := Chain(storage.NewSliceCursor(nil), Relevance(relevanceFor("red", nil)))
	assert.Empty(t, scan(t, c, posting.TermRange("red")))
}

func scored(n int) []storage.Entry {
	entries := make([]storage.Entry, 0, n)
	for i := range n {
		url := fmt.Sprintf("http://%d.example/%s", i, strings.Repeat("p", i%3))
		entries = append(entries, storage.Entry{
			Key:   storage.Key{Row: posting.Row("apple", "1"), Group: url + posting.FieldDelimiter + "t", Qualifier: "apple"},
			Value: EncodeRank(float64(i%5) / 4),
		})
	}
	storage.SortEntries(entries)
	return entries
}

func rankPage(t *testing.T, src []storage.Entry, page, size int) ([]storage.Key, int) {
	t.Helper()
	c := Chain(storage.NewSliceCursor(src), Ranking(page, size))
	got := scan(t, c, storage.Range{})
	keys := make([]storage.Key, 0, len(got))
	total := -1
	for i, e := range got {
		if i == len(got)-1 {
			n, ok := TotalFromKey(e.Key)
			require.True(t, ok)
			total = n
		} else {
			_, ok := TotalFromKey(e.Key)
			assert.False(t, ok)
		}
		keys = append(keys, e.Key)
	}
	slices.Reverse(keys)
	return keys, total
}

func TestRankingServesPageAscendingWithTotal(t *testing.T) {
	urls := []struct {
		url  string
		rank float64
	}{
		{"www.a.com", 0.05}, {"www.bing.com", 0.95}, {"www.b.com", 0.06},
		{"www.google.com", 0.98}, {"www.c.com", 0.07}, {"www.yahoo.com", 0.91},
		{"www.d.com", 0.08}, {"www.duckduckgo.com", 0.99}, {"www.e.com", 0.09},
	}
	var src []storage.Entry
	for _, u := range urls {
		src = append(src, storage.Entry{
			Key:   storage.Key{Row: "apple", Group: u.url + posting.FieldDelimiter, Qualifier: "x"},
			Value: EncodeRank(u.rank),
		})
	}
	storage.SortEntries(src)

	c := Chain(storage.NewSliceCursor(src), Ranking(1, 3))
	got := scan(t, c, storage.Range{})
	require.Len(t, got, 3)
	assert.Equal(t, "www.bing.com", posting.URLOf(got[0].Key.Group))
	assert.Equal(t, "www.google.com", posting.URLOf(got[1].Key.Group))
	assert.Equal(t, "www.duckduckgo.com", posting.URLOf(got[2].Key.Group))
	total, ok := TotalFromKey(got[2].Key)
	require.True(t, ok)
	assert.Equal(t, 9, total)

	tail := scan(t, Chain(storage.NewSliceCursor(src), Ranking(3, 4)), storage.Range{})
	require.Len(t, tail, 1)
	assert.Equal(t, "www.a.com", posting.URLOf(tail[0].Key.Group))

	assert.Empty(t, scan(t, Chain(storage.NewSliceCursor(src), Ranking(4, 4)), storage.Range{}))
}

func TestRankingPaginationConsistency(t *testing.T) {
	src := scored(23)
	for _, size := range []int{1, 4, 5, 10} {
		var concat []storage.Key
		pages := (23 + size - 1) / size
		for page := 1; page <= pages; page++ {
			keys, total := rankPage(t, src, page, size)
			assert.Equal(t, 23, total)
			concat = append(concat, keys...)
		}
		whole, _ := rankPage(t, src, 1, pages*size)
		require.Len(t, concat, 23)
		require.Len(t, whole, 23)
		for i := range concat {
			assert.Equal(t, whole[i].Group, concat[i].Group, "size %d position %d", size, i)
		}
	}
}

func TestRankingDeterministic(t *testing.T) {
	src := scored(40)
	first, _ := rankPage(t, src, 2, 7)
	for range 5 {
		again, _ := rankPage(t, src, 2, 7)
		assert.Equal(t, first, again)
	}
}

func TestRankingEmptyAndInvalid(t *testing.T) {
	c := Chain(storage.NewSliceCursor(nil), Ranking(1, 10))
	require.NoError(t, c.Seek(context.Background(), storage.Range{}))
	assert.False(t, c.Next())
	assert.Equal(t, storage.Key{}, c.Key())
	assert.Nil(t, c.Value())

	c = Chain(storage.NewSliceCursor(nil), Ranking(0, 10))
	err := c.Seek(context.Background(), storage.Range{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.False(t, c.Next())
}

func TestCompareCandidatesTieBreaks(t *testing.T) {
	mk := func(url string, rank float64) Candidate {
		return Candidate{Key: storage.Key{Group: url + posting.FieldDelimiter}, Rank: rank}
	}
	assert.Positive(t, CompareCandidates(mk("http://z", 0.9), mk("http://a", 0.1)))
	assert.Positive(t, CompareCandidates(mk("http://a", 0.5), mk("http://aaaa", 0.5)), "shorter url ranks higher")
	assert.Positive(t, CompareCandidates(mk("http://a", 0.5), mk("http://b", 0.5)), "smaller url ranks higher")
	assert.Zero(t, CompareCandidates(mk("http://a", 0.5), mk("http://a", 0.5)))
}

func TestRankCodec(t *testing.T) {
	for _, v := range []float64{0, 0.25, 1} {
		got, err := DecodeRank(EncodeRank(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := DecodeRank([]byte{1, 2})
	assert.ErrorIs(t, err, apperrors.ErrCorruptValue)

	_, ok := TotalFromKey(storage.Key{Qualifier: "#total:x"})
	assert.False(t, ok)
}
