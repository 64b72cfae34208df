// Package memtable holds recently written posting cells in memory until the
// engine flushes them to a segment.
package memtable

import (
	"sync"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
)

// entryOverhead approximates per-cell bookkeeping in Size.
const entryOverhead = 64

type MemTable struct {
	mu     sync.RWMutex
	cells  map[storage.Key][]byte
	sorted []storage.Entry
	dirty  bool
	groups map[string]struct{}
	size   int64
}

func New() *MemTable {
	return &MemTable{
		cells:  make(map[storage.Key][]byte),
		groups: make(map[string]struct{}),
	}
}

// Put stores entries, replacing any cell with the same key.
func (m *MemTable) Put(entries []storage.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		k := e.Key
		if old, exists := m.cells[k]; exists {
			m.size -= int64(len(old))
		} else {
			m.size += int64(len(k.Row)+len(k.Group)+len(k.Qualifier)) + entryOverhead
		}
		value := make([]byte, len(e.Value))
		copy(value, e.Value)
		m.cells[k] = value
		m.size += int64(len(value))
		m.groups[k.Group] = struct{}{}
	}
	if len(entries) > 0 {
		m.dirty = true
	}
}

// Delete records a tombstone for every key, so the cells stay hidden after
// the table is merged with older segments.
func (m *MemTable) Delete(keys []storage.Key) {
	tombstones := make([]storage.Entry, len(keys))
	for i, k := range keys {
		tombstones[i] = storage.Entry{Key: k}
	}
	m.Put(tombstones)
}

// Snapshot returns all cells in key order. The returned slice is shared and
// must not be modified; later writes produce a new slice.
func (m *MemTable) Snapshot() []storage.Entry {
	m.mu.RLock()
	if !m.dirty {
		s := m.sorted
		m.mu.RUnlock()
		return s
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirty {
		sorted := make([]storage.Entry, 0, len(m.cells))
		for k, v := range m.cells {
			sorted = append(sorted, storage.Entry{Key: k, Value: v})
		}
		storage.SortEntries(sorted)
		m.sorted = sorted
		m.dirty = false
	}
	return m.sorted
}

// Cursor scans a point-in-time snapshot of the table.
func (m *MemTable) Cursor() storage.Cursor {
	return storage.NewSliceCursor(m.Snapshot())
}

func (m *MemTable) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cells)
}

// GroupCount is the number of distinct documents seen since the last Reset.
func (m *MemTable) GroupCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}

func (m *MemTable) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells = make(map[storage.Key][]byte)
	m.groups = make(map[string]struct{})
	m.sorted = nil
	m.dirty = false
	m.size = 0
}
