package storage

import (
	"bytes"
	"container/heap"
	"context"
	"errors"
)

// MergeCursor merges several sorted cursors into one. Sources are given in
// priority order: when two sources hold the same key, the entry from the
// earlier source wins and the others are skipped.
type MergeCursor struct {
	sources    []Cursor
	live       bool
	h          sourceHeap
	cur        *mergeItem
	positioned bool
	err        error
}

// NewMergeCursor builds a merge over sources, highest priority first.
func NewMergeCursor(sources ...Cursor) *MergeCursor {
	return &MergeCursor{sources: sources}
}

// NewLiveMergeCursor is NewMergeCursor that also hides tombstones once they
// have shadowed the older entries under the same key.
func NewLiveMergeCursor(sources ...Cursor) *MergeCursor {
	return &MergeCursor{sources: sources, live: true}
}

type mergeItem struct {
	key      Key
	value    []byte
	priority int
}

type sourceHeap []*mergeItem

func (h sourceHeap) Len() int { return len(h) }

func (h sourceHeap) Less(i, j int) bool {
	if c := h[i].key.Compare(h[j].key); c != 0 {
		return c < 0
	}
	return h[i].priority < h[j].priority
}

func (h sourceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sourceHeap) Push(x any) {
	*h = append(*h, x.(*mergeItem))
}

func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (m *MergeCursor) Seek(ctx context.Context, r Range) error {
	m.h = m.h[:0]
	m.cur = nil
	m.err = nil
	for i, src := range m.sources {
		if err := src.Seek(ctx, r); err != nil {
			m.err = err
			return err
		}
		m.pull(i)
	}
	if m.err != nil {
		return m.err
	}
	heap.Init(&m.h)
	m.advance()
	m.positioned = true
	return m.err
}

// pull reads the next entry of source i onto the heap.
func (m *MergeCursor) pull(i int) {
	src := m.sources[i]
	if src.Next() {
		m.h = append(m.h, &mergeItem{key: src.Key(), value: bytes.Clone(src.Value()), priority: i})
		return
	}
	if err := src.Err(); err != nil && m.err == nil {
		m.err = err
	}
}

// advance pops the smallest key and drops shadowed duplicates.
func (m *MergeCursor) advance() {
	for {
		if m.h.Len() == 0 || m.err != nil {
			m.cur = nil
			return
		}
		top := heap.Pop(&m.h).(*mergeItem)
		m.refill(top.priority)
		for m.h.Len() > 0 && m.h[0].key.Compare(top.key) == 0 {
			dup := heap.Pop(&m.h).(*mergeItem)
			m.refill(dup.priority)
		}
		if m.live && len(top.value) == 0 {
			continue
		}
		m.cur = top
		return
	}
}

func (m *MergeCursor) refill(i int) {
	src := m.sources[i]
	if src.Next() {
		heap.Push(&m.h, &mergeItem{key: src.Key(), value: bytes.Clone(src.Value()), priority: i})
		return
	}
	if err := src.Err(); err != nil && m.err == nil {
		m.err = err
	}
}

func (m *MergeCursor) Next() bool {
	if m.positioned {
		m.positioned = false
	} else {
		m.advance()
	}
	return m.cur != nil && m.err == nil
}

func (m *MergeCursor) Key() Key {
	if m.cur == nil {
		return Key{}
	}
	return m.cur.key
}

func (m *MergeCursor) Value() []byte {
	if m.cur == nil {
		return nil
	}
	return m.cur.value
}

func (m *MergeCursor) Err() error { return m.err }

func (m *MergeCursor) Close() error {
	var errs []error
	for _, src := range m.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.cur = nil
	m.h = nil
	return errors.Join(errs...)
}
