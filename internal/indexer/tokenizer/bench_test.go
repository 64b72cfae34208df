package tokenizer

import (
	"strings"
	"testing"
)

var benchText = strings.Repeat("distributed full-text search engines rank documents by relevance and authority ", 50)

func BenchmarkNGrams(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		NGrams(benchText, 3)
	}
}

func BenchmarkTermRatios(b *testing.B) {
	freqs := TermFrequencies(NGrams(benchText, 3))
	b.ReportAllocs()
	for b.Loop() {
		TermRatios(freqs, benchText)
	}
}
