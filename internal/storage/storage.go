// Package storage defines the sorted key-value contract the ranking pipeline
// reads from: three-part keys ordered bytewise, row-range scans and a
// forward-only pull cursor. Backends live in sub-packages.
package storage

import (
	"cmp"
	"context"
)

// Key addresses one cell. Keys order by Row, then Group, then Qualifier,
// each compared bytewise.
type Key struct {
	Row       string
	Group     string
	Qualifier string
}

// Compare returns -1, 0 or +1.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Row, o.Row); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Group, o.Group); c != 0 {
		return c
	}
	return cmp.Compare(k.Qualifier, o.Qualifier)
}

// SameGroup reports whether both keys share Row and Group.
func (k Key) SameGroup(o Key) bool {
	return k.Row == o.Row && k.Group == o.Group
}

// Entry is a key with its value. Stored values are never empty; backends
// that keep history use an empty value to mark a deleted cell.
type Entry struct {
	Key   Key
	Value []byte
}

// Tombstone reports whether e marks a deleted cell.
func (e Entry) Tombstone() bool {
	return len(e.Value) == 0
}

// Range selects rows in [Start, End). An empty End is unbounded.
type Range struct {
	Start string
	End   string
}

// Contains reports whether row falls inside the range.
func (r Range) Contains(row string) bool {
	return row >= r.Start && (r.End == "" || row < r.End)
}

// Past reports whether row sorts at or beyond the end of the range.
func (r Range) Past(row string) bool {
	return r.End != "" && row >= r.End
}

// Cursor is a forward-only scan over entries in key order.
//
// Seek positions the cursor on the first entry of the range and may compute
// it eagerly. The first Next after Seek reports that entry without moving;
// every later Next advances. Key and Value are valid only after Next
// returned true and until the following Next. When Next returns false, Err
// distinguishes exhaustion from failure. A cursor is not safe for concurrent
// use.
type Cursor interface {
	Seek(ctx context.Context, r Range) error
	Next() bool
	Key() Key
	Value() []byte
	Err() error
	Close() error
}

// Store is an ordered posting store split into one or more partitions. A
// document group never spans partitions.
type Store interface {
	// Cursors returns one fresh, unpositioned cursor per partition.
	Cursors(ctx context.Context) ([]Cursor, error)
	// Write inserts entries, replacing the value of any existing cell.
	Write(ctx context.Context, entries []Entry) error
	// Delete removes the cells at keys. Missing keys are ignored.
	Delete(ctx context.Context, keys []Key) error
	Ping(ctx context.Context) error
	Close() error
}
