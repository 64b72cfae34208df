package storage

import (
	"context"
	"sort"
)

// SliceCursor scans an in-memory slice already sorted by key. The slice is
// never modified.
type SliceCursor struct {
	entries    []Entry
	rng        Range
	pos        int
	positioned bool
	err        error
}

// NewSliceCursor wraps sorted entries.
func NewSliceCursor(entries []Entry) *SliceCursor {
	return &SliceCursor{entries: entries, pos: len(entries)}
}

func (c *SliceCursor) Seek(ctx context.Context, r Range) error {
	if err := ctx.Err(); err != nil {
		c.err = err
		return err
	}
	c.rng = r
	c.err = nil
	c.pos = sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Key.Row >= r.Start
	})
	c.positioned = true
	return nil
}

func (c *SliceCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.positioned {
		c.positioned = false
	} else if c.pos < len(c.entries) {
		c.pos++
	}
	return c.pos < len(c.entries) && !c.rng.Past(c.entries[c.pos].Key.Row)
}

func (c *SliceCursor) Key() Key {
	if c.pos >= len(c.entries) {
		return Key{}
	}
	return c.entries[c.pos].Key
}

func (c *SliceCursor) Value() []byte {
	if c.pos >= len(c.entries) {
		return nil
	}
	return c.entries[c.pos].Value
}

func (c *SliceCursor) Err() error { return c.err }

func (c *SliceCursor) Close() error {
	c.pos = len(c.entries)
	return nil
}

// SortEntries orders entries by key in place.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.Compare(entries[j].Key) < 0
	})
}

// Collect drains a positioned cursor into a slice. Intended for tests and
// small scans.
func Collect(c Cursor) ([]Entry, error) {
	var out []Entry
	for c.Next() {
		out = append(out, Entry{Key: c.Key(), Value: c.Value()})
	}
	return out, c.Err()
}
