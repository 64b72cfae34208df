package spell

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
)

const (
	termField = "term"
	// maxFuzziness is the largest edit distance bleve's fuzzy query supports.
	maxFuzziness = 2
	indexBatch   = 1000
)

// BleveSuggester answers Suggest from an in-memory bleve index of the
// vocabulary, one document per word keyed by the word itself, matched with a
// fuzzy query.
type BleveSuggester struct {
	mu     sync.RWMutex
	index  bleve.Index
	logger *slog.Logger
}

// NewBleveSuggester indexes words. Call Close to release the index.
func NewBleveSuggester(words []string) (*BleveSuggester, error) {
	index, err := buildIndex(words)
	if err != nil {
		return nil, err
	}
	s := &BleveSuggester{
		index:  index,
		logger: slog.Default().With("component", "bleve-suggester"),
	}
	s.logger.Info("suggestion index built", "words", len(words))
	return s, nil
}

func buildIndex(words []string) (bleve.Index, error) {
	fieldMapping := bleve.NewTextFieldMapping()
	fieldMapping.Analyzer = keyword.Name
	fieldMapping.Store = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(termField, fieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = keyword.Name

	index, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("creating suggestion index: %w", err)
	}

	batch := index.NewBatch()
	for _, w := range words {
		if err := batch.Index(w, map[string]any{termField: w}); err != nil {
			index.Close()
			return nil, fmt.Errorf("indexing %q: %w", w, err)
		}
		if batch.Size() >= indexBatch {
			if err := index.Batch(batch); err != nil {
				index.Close()
				return nil, fmt.Errorf("flushing suggestion batch: %w", err)
			}
			batch.Reset()
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("flushing suggestion batch: %w", err)
	}
	return index, nil
}

// Rebuild replaces the vocabulary. Suggestions keep coming from the old
// index until the new one is complete.
func (s *BleveSuggester) Rebuild(words []string) error {
	index, err := buildIndex(words)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.index
	s.index = index
	s.mu.Unlock()
	s.logger.Info("suggestion index rebuilt", "words", len(words))
	return old.Close()
}

// Suggest returns up to limit indexed words within two edits of term, best
// match first.
func (s *BleveSuggester) Suggest(ctx context.Context, term string, limit int) ([]string, error) {
	if term == "" || limit <= 0 {
		return nil, nil
	}
	q := bleve.NewFuzzyQuery(term)
	q.SetField(termField)
	q.SetFuzziness(maxFuzziness)

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fuzzy search for %q: %w", term, err)
	}
	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, hit.ID)
	}
	return out, nil
}

// Size returns the number of indexed words.
func (s *BleveSuggester) Size() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

func (s *BleveSuggester) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}
