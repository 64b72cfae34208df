// Package tokenizer splits document and query text into words and bounded
// n-grams, and turns n-gram lists into frequency and ratio vectors. The same
// functions run on both sides of the index so posting terms and query terms
// always agree.
package tokenizer

import (
	"strings"
	"unicode"
)

// DefaultStopWords is used for pivot selection when no stop-word file is
// configured.
var DefaultStopWords = NewStopWords(
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
)

// StopWords is a read-only set of lower-case words.
type StopWords map[string]struct{}

// NewStopWords builds a set from words, lower-casing each.
func NewStopWords(words ...string) StopWords {
	set := make(StopWords, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// Contains reports whether word is a stop word. A nil set contains nothing.
func (s StopWords) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

// isWordRune matches word characters, hyphen and apostrophe. Every other
// rune separates words.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '\''
}

// Words lower-cases text and splits it on runs of non-word runes.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

// NGrams returns every contiguous window of 1..maxN words joined by a single
// space, all unigrams first, then bigrams, and so on, each left to right.
// maxN is clamped to [1, len(words)].
func NGrams(text string, maxN int) []string {
	return NGramsOf(Words(text), maxN)
}

// NGramsOf is NGrams over an already split word list.
func NGramsOf(words []string, maxN int) []string {
	if len(words) == 0 {
		return []string{}
	}
	n := max(1, min(maxN, len(words)))

	total := 0
	for x := 1; x <= n; x++ {
		total += len(words) - x + 1
	}
	grams := make([]string, 0, total)
	for x := 1; x <= n; x++ {
		for i := 0; i+x <= len(words); i++ {
			grams = append(grams, strings.Join(words[i:i+x], " "))
		}
	}
	return grams
}

// TermFrequencies counts occurrences of each n-gram.
func TermFrequencies(grams []string) map[string]int {
	freqs := make(map[string]int, len(grams))
	for _, g := range grams {
		freqs[g]++
	}
	return freqs
}

// TermRatios converts frequencies into ratios against the word count of
// text: freq * wordsInTerm / totalWords. Multi-word terms are weighted by
// their length, so "a b" in "a b c" scores 2/3.
func TermRatios(freqs map[string]int, text string) map[string]float64 {
	return TermRatiosOf(freqs, len(Words(text)))
}

// TermRatiosOf is TermRatios with a precomputed word count. A zero count
// yields an empty map.
func TermRatiosOf(freqs map[string]int, totalWords int) map[string]float64 {
	ratios := make(map[string]float64, len(freqs))
	if totalWords <= 0 {
		return ratios
	}
	for term, freq := range freqs {
		ratios[term] = float64(freq) * float64(WordCount(term)) / float64(totalWords)
	}
	return ratios
}

// WordCount returns the number of space-separated words in an n-gram.
func WordCount(term string) int {
	return strings.Count(term, " ") + 1
}

// WordSpans returns the byte offsets [start, end) of each word in text, in
// order. Lower-casing each span yields the same words as Words.
func WordSpans(text string) [][2]int {
	var spans [][2]int
	start := -1
	for i, r := range text {
		switch {
		case isWordRune(r) && start < 0:
			start = i
		case !isWordRune(r) && start >= 0:
			spans = append(spans, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, [2]int{start, len(text)})
	}
	return spans
}
