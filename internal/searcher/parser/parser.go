// Package parser turns raw query text into a query plan: its words, the
// required n-grams with their ratios, and the pivot term whose posting rows
// bound the scan.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/tokenizer"
)

// Frequencies reports how many documents contain a term.
type Frequencies interface {
	DocFrequency(term string) (int64, bool)
}

type QueryPlan struct {
	RawQuery string
	// Normalized is the lower-cased words joined by single spaces.
	Normalized string
	Words      []string
	// Terms holds every n-gram of the query, unigrams first. A matching
	// document must contain all of them.
	Terms  []string
	Ratios map[string]float64
	// Pivot is the rarest non-stop word known to the sample table. It is
	// empty when no word qualifies.
	Pivot string
}

// HasPivot reports whether the query can be scanned at all.
func (p *QueryPlan) HasPivot() bool { return p.Pivot != "" }

func Parse(query string, maxN int, stopWords tokenizer.StopWords, freqs Frequencies) *QueryPlan {
	words := tokenizer.Words(query)
	terms := tokenizer.NGramsOf(words, maxN)
	plan := &QueryPlan{
		RawQuery:   query,
		Normalized: normalized(words),
		Words:      words,
		Terms:      terms,
		Ratios:     tokenizer.TermRatiosOf(tokenizer.TermFrequencies(terms), len(words)),
	}
	plan.Pivot = pivot(words, stopWords, freqs)
	return plan
}

// Normalize returns the canonical form of query used for cache keys: its
// lower-cased words joined by single spaces.
func Normalize(query string) string {
	return normalized(tokenizer.Words(query))
}

func normalized(words []string) string { return strings.Join(words, " ") }

// pivot picks the word with the lowest document frequency, keeping the
// first on ties.
func pivot(words []string, stopWords tokenizer.StopWords, freqs Frequencies) string {
	if freqs == nil {
		return ""
	}
	var (
		best      string
		bestCount int64
	)
	for _, w := range words {
		if stopWords.Contains(w) {
			continue
		}
		count, ok := freqs.DocFrequency(w)
		if !ok {
			continue
		}
		if best == "" || count < bestCount {
			best, bestCount = w, count
		}
	}
	return best
}
