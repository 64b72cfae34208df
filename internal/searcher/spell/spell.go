// Package spell proposes corrections for queries that matched nothing. A
// Suggester returns near matches for a single word; Correct picks, for each
// unknown word, the candidate most common in the sample table.
package spell

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/tokenizer"
)

// Suggester finds vocabulary words close to term.
type Suggester interface {
	Suggest(ctx context.Context, term string, limit int) ([]string, error)
}

// Vocabulary reports document frequencies of known terms.
type Vocabulary interface {
	DocFrequency(term string) (int64, bool)
}

// Correct rewrites query by replacing each word missing from vocab with its
// most frequent known suggestion. Words without a usable suggestion are
// kept as typed, as is everything between words. It returns "" when no word
// was replaced. Suggester failures only drop the affected word.
func Correct(ctx context.Context, query string, vocab Vocabulary, s Suggester, limit int) string {
	if s == nil || vocab == nil {
		return ""
	}
	logger := slog.Default().With("component", "spell")

	replacements := make(map[string]string)
	for _, word := range tokenizer.Words(query) {
		if _, seen := replacements[word]; seen {
			continue
		}
		if _, known := vocab.DocFrequency(word); known {
			continue
		}
		candidates, err := s.Suggest(ctx, word, limit)
		if err != nil {
			logger.Warn("suggestion failed", "word", word, "error", err)
			replacements[word] = ""
			continue
		}
		replacements[word] = best(word, candidates, vocab)
	}

	var (
		b       strings.Builder
		last    int
		changed bool
	)
	for _, span := range tokenizer.WordSpans(query) {
		word := strings.ToLower(query[span[0]:span[1]])
		repl := replacements[word]
		if repl == "" {
			continue
		}
		b.WriteString(query[last:span[0]])
		b.WriteString(repl)
		last = span[1]
		changed = true
	}
	if !changed {
		return ""
	}
	b.WriteString(query[last:])
	return b.String()
}

// best returns the candidate with the highest document frequency, the
// earliest on ties. Unknown candidates and word itself are ignored.
func best(word string, candidates []string, vocab Vocabulary) string {
	var (
		pick  string
		count int64 = -1
	)
	for _, c := range candidates {
		if c == word {
			continue
		}
		n, ok := vocab.DocFrequency(c)
		if !ok {
			continue
		}
		if n > count {
			pick, count = c, n
		}
	}
	return pick
}
