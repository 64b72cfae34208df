package pipeline

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
)

// Authority returns a document's authority score normalized to [0, 1].
type Authority interface {
	Normalized(url string) float64
}

// Stats counts what a relevance cursor saw. It is written by one cursor
// only and read after the scan.
type Stats struct {
	Groups  int64
	Matches int64
	Corrupt int64
}

type RelevanceOptions struct {
	// Terms is the required term set: every query n-gram.
	Terms       []string
	QueryRatios map[string]float64
	Frequencies ranker.DocFrequencies
	Authority   Authority
	Stats       *Stats
	Logger      *slog.Logger
}

// Relevance groups posting rows into documents and emits one entry per
// document that holds every required term. The entry's key is the group's
// first key and its value the encoded rank.
func Relevance(opts RelevanceOptions) Stage {
	return func(src storage.Cursor) storage.Cursor {
		return newRelevanceCursor(src, opts)
	}
}

type relevanceCursor struct {
	src  storage.Cursor
	opts RelevanceOptions

	required map[string]struct{}
	logger   *slog.Logger

	// open group
	open      bool
	groupKey  storage.Key
	remaining map[string]struct{}
	vector    map[string]float64

	current    storage.Entry
	has        bool
	positioned bool
	warned     bool
	stats      Stats
	err        error
}

func newRelevanceCursor(src storage.Cursor, opts RelevanceOptions) *relevanceCursor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "relevance-cursor")
	}
	required := make(map[string]struct{}, len(opts.Terms))
	for _, t := range opts.Terms {
		required[t] = struct{}{}
	}
	return &relevanceCursor{src: src, opts: opts, required: required, logger: logger}
}

func (c *relevanceCursor) Seek(ctx context.Context, r storage.Range) error {
	c.open = false
	c.has = false
	c.err = nil
	c.stats = Stats{}
	c.warned = false
	if err := c.src.Seek(ctx, r); err != nil {
		c.err = err
		return err
	}
	c.has = c.advance()
	c.positioned = true
	return c.err
}

func (c *relevanceCursor) Next() bool {
	if c.positioned {
		c.positioned = false
		return c.has
	}
	if !c.has {
		return false
	}
	c.has = c.advance()
	return c.has
}

// advance scans until a group closes with a match or the source runs out.
// A group is only decided once the next group starts or the source is
// exhausted, so the final group is evaluated exactly once after the loop.
func (c *relevanceCursor) advance() bool {
	for c.src.Next() {
		key := c.src.Key()
		if c.open && !key.SameGroup(c.groupKey) {
			entry, matched := c.closeGroup()
			c.openGroup(key)
			c.absorb(key, c.src.Value())
			if matched {
				c.current = entry
				return true
			}
			continue
		}
		if !c.open {
			c.openGroup(key)
		}
		c.absorb(key, c.src.Value())
	}
	if err := c.src.Err(); err != nil {
		c.err = err
		c.open = false
		c.finish()
		return false
	}
	if c.open {
		entry, matched := c.closeGroup()
		if matched {
			c.current = entry
			return true
		}
	}
	c.finish()
	return false
}

func (c *relevanceCursor) openGroup(key storage.Key) {
	c.open = true
	c.groupKey = key
	c.remaining = make(map[string]struct{}, len(c.required))
	for t := range c.required {
		c.remaining[t] = struct{}{}
	}
	c.vector = make(map[string]float64)
	c.stats.Groups++
}

// absorb records one cell of the open group. The key alone proves the
// qualifier occurs in the document, so an undecodable value only loses its
// ratio, never the match.
func (c *relevanceCursor) absorb(key storage.Key, raw []byte) {
	delete(c.remaining, key.Qualifier)
	v, err := posting.DecodeValue(raw)
	if err != nil {
		c.stats.Corrupt++
		if !c.warned {
			c.warned = true
			c.logger.Warn("skipping undecodable posting", "row", key.Row, "group", key.Group,
				"qualifier", key.Qualifier, "error", err)
		}
		return
	}
	c.vector[key.Qualifier] = v.Ratio
}

func (c *relevanceCursor) closeGroup() (storage.Entry, bool) {
	c.open = false
	if len(c.remaining) > 0 {
		return storage.Entry{}, false
	}
	c.stats.Matches++
	cosine := ranker.Cosine(c.vector, c.opts.QueryRatios, c.opts.Terms, c.opts.Frequencies)
	var authority float64
	if c.opts.Authority != nil {
		authority = c.opts.Authority.Normalized(posting.URLOf(c.groupKey.Group))
	}
	return storage.Entry{
		Key:   c.groupKey,
		Value: EncodeRank(ranker.Blend(cosine, authority)),
	}, true
}

func (c *relevanceCursor) finish() {
	if c.stats.Corrupt > 0 {
		c.logger.Debug("relevance scan finished", "groups", c.stats.Groups,
			"matches", c.stats.Matches, "skipped", c.stats.Corrupt)
	}
	if c.opts.Stats != nil {
		*c.opts.Stats = c.stats
	}
}

func (c *relevanceCursor) Key() storage.Key {
	if !c.has {
		return storage.Key{}
	}
	return c.current.Key
}

func (c *relevanceCursor) Value() []byte {
	if !c.has {
		return nil
	}
	return c.current.Value
}

func (c *relevanceCursor) Err() error { return c.err }

func (c *relevanceCursor) Close() error { return c.src.Close() }
