package pipeline

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
)

// Ranking drains the scored entries of its source into a top-k selector
// sized page*pageSize and serves the requested page worst first. The last
// entry served carries the total match count in its qualifier, readable
// with TotalFromKey.
func Ranking(page, pageSize int) Stage {
	return func(src storage.Cursor) storage.Cursor {
		return &rankingCursor{src: src, page: page, pageSize: pageSize}
	}
}

type rankingCursor struct {
	src            storage.Cursor
	page, pageSize int

	results    []Candidate
	pos        int
	total      int
	positioned bool
	err        error
}

func (c *rankingCursor) Seek(ctx context.Context, r storage.Range) error {
	c.results = nil
	c.pos = 0
	c.total = 0
	c.err = nil
	c.positioned = true
	if c.page < 1 || c.pageSize < 1 {
		c.err = fmt.Errorf("%w: page %d size %d", apperrors.ErrInvalidInput, c.page, c.pageSize)
		return c.err
	}
	if err := c.src.Seek(ctx, r); err != nil {
		c.err = err
		return err
	}

	sel := NewSelector(c.page, c.pageSize)
	for c.src.Next() {
		rank, err := DecodeRank(c.src.Value())
		if err != nil {
			continue
		}
		c.total++
		sel.Add(Candidate{Key: c.src.Key(), Rank: rank})
	}
	if err := c.src.Err(); err != nil {
		c.err = err
		return err
	}
	c.results = PageOf(sel, c.total, c.page, c.pageSize)
	return nil
}

func (c *rankingCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.positioned {
		c.positioned = false
	} else if c.pos < len(c.results) {
		c.pos++
	}
	return c.pos < len(c.results)
}

func (c *rankingCursor) Key() storage.Key {
	if c.pos >= len(c.results) {
		return storage.Key{}
	}
	key := c.results[c.pos].Key
	if c.pos == len(c.results)-1 {
		key = withTotal(key, c.total)
	}
	return key
}

func (c *rankingCursor) Value() []byte {
	if c.pos >= len(c.results) {
		return nil
	}
	return EncodeRank(c.results[c.pos].Rank)
}

func (c *rankingCursor) Err() error { return c.err }

func (c *rankingCursor) Close() error { return c.src.Close() }
