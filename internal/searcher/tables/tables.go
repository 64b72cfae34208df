// Package tables holds the read-only ranking inputs of the query path: the
// sample table of document frequencies, the authority table and the stop
// words used for pivot selection. A Holder swaps whole snapshots so every
// query sees one consistent set.
package tables

import (
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/ranker"
)

const (
	// TotalDocsKey holds the corpus size in the sample table.
	TotalDocsKey = "[[TOTAL NUM DOCS]]"
	// MaxAuthorityKey holds the largest score in the authority table.
	MaxAuthorityKey = "[[MAX_PR]]"
)

// Sample maps a term to the number of documents containing it.
type Sample struct {
	counts map[string]int64
	total  int64
}

// NewSample takes ownership of counts and lifts the TotalDocsKey sentinel
// out of the term map.
func NewSample(counts map[string]int64) *Sample {
	if counts == nil {
		counts = map[string]int64{}
	}
	total := counts[TotalDocsKey]
	delete(counts, TotalDocsKey)
	return &Sample{counts: counts, total: total}
}

func (s *Sample) DocFrequency(term string) (int64, bool) {
	c, ok := s.counts[term]
	return c, ok
}

func (s *Sample) Contains(term string) bool {
	_, ok := s.counts[term]
	return ok
}

func (s *Sample) TotalDocs() int64 { return s.total }

func (s *Sample) Len() int { return len(s.counts) }

// Words returns the single-word terms, sorted. They are the vocabulary
// offered to spelling suggestion.
func (s *Sample) Words() []string {
	words := make([]string, 0, len(s.counts))
	for term := range s.counts {
		if !strings.Contains(term, " ") {
			words = append(words, term)
		}
	}
	slices.Sort(words)
	return words
}

// Authority maps a canonical URL to its link authority score.
type Authority struct {
	scores map[string]float64
	max    float64
}

// NewAuthority takes ownership of scores. The maximum comes from the
// MaxAuthorityKey sentinel, or from the scores themselves when the sentinel
// is absent.
func NewAuthority(scores map[string]float64) *Authority {
	if scores == nil {
		scores = map[string]float64{}
	}
	maxScore, ok := scores[MaxAuthorityKey]
	delete(scores, MaxAuthorityKey)
	if !ok {
		for _, v := range scores {
			maxScore = max(maxScore, v)
		}
	}
	return &Authority{scores: scores, max: maxScore}
}

func (a *Authority) Score(url string) (float64, bool) {
	v, ok := a.scores[url]
	return v, ok
}

func (a *Authority) Max() float64 { return a.max }

func (a *Authority) Len() int { return len(a.scores) }

// Normalized returns the URL's score over the table maximum, 0 when either
// is missing.
func (a *Authority) Normalized(url string) float64 {
	return ranker.NormalizeAuthority(a.scores[url], a.max)
}

// Snapshot is one immutable set of ranking inputs.
type Snapshot struct {
	Sample    *Sample
	Authority *Authority
	StopWords tokenizer.StopWords
	LoadedAt  time.Time

	// Generation is assigned by the Holder when the snapshot is published
	// and grows with every swap.
	Generation uint64
}

// Holder publishes the current snapshot. Readers never block writers.
type Holder struct {
	current atomic.Pointer[Snapshot]
	gen     atomic.Uint64
}

func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	h.Swap(s)
	return h
}

// Load returns the snapshot in effect. Callers keep using it for the whole
// query even if a swap happens meanwhile.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Swap installs s and returns the previous snapshot.
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	s.Generation = h.gen.Add(1)
	return h.current.Swap(s)
}
