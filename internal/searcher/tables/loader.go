package tables

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
)

// Loader produces a fresh snapshot.
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// FileLoader reads the sample and authority tables from YAML or JSON maps
// and the stop words from a text file with one word per line.
type FileLoader struct {
	SamplePath    string
	AuthorityPath string
	StopWordsPath string
}

func (l FileLoader) Load(ctx context.Context) (*Snapshot, error) {
	var (
		sample    map[string]int64
		authority map[string]float64
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return readMap(l.SamplePath, &sample)
	})
	g.Go(func() error {
		return readMap(l.AuthorityPath, &authority)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stopWords, err := LoadStopWords(l.StopWordsPath)
	if err != nil {
		return nil, err
	}
	return build(sample, authority, stopWords)
}

func readMap[T any](path string, out *map[string]T) error {
	if path == "" {
		return apperrors.New(apperrors.ErrTablesUnavailable, http.StatusServiceUnavailable, "table path not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", apperrors.ErrTablesUnavailable, path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", apperrors.ErrTablesUnavailable, path, err)
	}
	return nil
}

// LoadStopWords reads one word per line; blank lines and lines starting
// with # are ignored. An empty path yields the default list.
func LoadStopWords(path string) (tokenizer.StopWords, error) {
	if path == "" {
		return tokenizer.DefaultStopWords, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stop words: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stop words: %w", err)
	}
	return tokenizer.NewStopWords(words...), nil
}

// PostgresLoader reads sample_terms and authority_scores concurrently.
type PostgresLoader struct {
	DB        *sql.DB
	StopWords tokenizer.StopWords
}

func (l PostgresLoader) Load(ctx context.Context) (*Snapshot, error) {
	var (
		sample    map[string]int64
		authority map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sample, err = queryMap[int64](gctx, l.DB, `SELECT term, doc_count FROM sample_terms`)
		if err != nil {
			return fmt.Errorf("%w: loading sample_terms: %v", apperrors.ErrTablesUnavailable, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		authority, err = queryMap[float64](gctx, l.DB, `SELECT url, score FROM authority_scores`)
		if err != nil {
			return fmt.Errorf("%w: loading authority_scores: %v", apperrors.ErrTablesUnavailable, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stopWords := l.StopWords
	if stopWords == nil {
		stopWords = tokenizer.DefaultStopWords
	}
	return build(sample, authority, stopWords)
}

func queryMap[T int64 | float64](ctx context.Context, db *sql.DB, query string) (map[string]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]T)
	for rows.Next() {
		var (
			key string
			val T
		)
		if err := rows.Scan(&key, &val); err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, rows.Err()
}

func build(sample map[string]int64, authority map[string]float64, stopWords tokenizer.StopWords) (*Snapshot, error) {
	s := NewSample(sample)
	if s.TotalDocs() <= 0 {
		return nil, apperrors.Newf(apperrors.ErrTablesUnavailable, http.StatusServiceUnavailable,
			"sample table has no %s entry", TotalDocsKey)
	}
	return &Snapshot{
		Sample:    s,
		Authority: NewAuthority(authority),
		StopWords: stopWords,
		LoadedAt:  time.Now(),
	}, nil
}

// NewLoader picks the loader named by cfg.Search.TablesSource.
func NewLoader(cfg *config.Config, db *sql.DB) (Loader, error) {
	switch cfg.Search.TablesSource {
	case config.TablesFromPostgres:
		if db == nil {
			return nil, fmt.Errorf("tables source %q needs a postgres connection", cfg.Search.TablesSource)
		}
		stopWords, err := LoadStopWords(cfg.Search.StopWordsFile)
		if err != nil {
			return nil, err
		}
		return PostgresLoader{DB: db, StopWords: stopWords}, nil
	case config.TablesFromFile, "":
		return FileLoader{
			SamplePath:    cfg.Search.SampleFile,
			AuthorityPath: cfg.Search.AuthorityFile,
			StopWordsPath: cfg.Search.StopWordsFile,
		}, nil
	default:
		return nil, fmt.Errorf("unknown tables source %q", cfg.Search.TablesSource)
	}
}

// Reload loads a new snapshot and installs it. On failure the current
// snapshot stays in place.
func Reload(ctx context.Context, loader Loader, holder *Holder) (*Snapshot, error) {
	snap, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	holder.Swap(snap)
	slog.Default().With("component", "tables").Info("ranking tables loaded",
		"generation", snap.Generation,
		"terms", snap.Sample.Len(),
		"total_docs", snap.Sample.TotalDocs(),
		"urls", snap.Authority.Len(),
		"max_authority", snap.Authority.Max(),
	)
	return snap, nil
}
