// Package topk provides a capacity-bounded ordered container that keeps the
// k greatest items seen under a caller supplied total order.
package topk

import "slices"

// Selector retains at most Cap items, ordered ascending by cmp. Items that
// compare equal to one already held are not stored twice. A Selector is not
// safe for concurrent use.
type Selector[T any] struct {
	cmp      func(a, b T) int
	items    []T
	capacity int
}

// New returns an empty selector. A non-positive capacity rejects every item.
func New[T any](capacity int, cmp func(a, b T) int) *Selector[T] {
	capacity = max(capacity, 0)
	return &Selector[T]{
		cmp:      cmp,
		items:    make([]T, 0, min(capacity, 1024)),
		capacity: capacity,
	}
}

// Add offers item. Below capacity the item is inserted; at capacity it
// replaces the current minimum only when strictly greater. Add reports
// whether the selector holds item afterwards.
func (s *Selector[T]) Add(item T) bool {
	if s.capacity == 0 {
		return false
	}
	pos, found := slices.BinarySearchFunc(s.items, item, s.cmp)
	if found {
		return len(s.items) < s.capacity
	}
	if len(s.items) < s.capacity {
		s.items = slices.Insert(s.items, pos, item)
		return true
	}
	if pos == 0 {
		// not strictly greater than the minimum
		return false
	}
	copy(s.items, s.items[1:pos])
	s.items[pos-1] = item
	return true
}

// Min returns the smallest item without removing it.
func (s *Selector[T]) Min() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[0], true
}

// Max returns the greatest item without removing it.
func (s *Selector[T]) Max() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

func (s *Selector[T]) PopMin() (T, bool) {
	item, ok := s.Min()
	if ok {
		s.items = slices.Delete(s.items, 0, 1)
	}
	return item, ok
}

func (s *Selector[T]) PopMax() (T, bool) {
	item, ok := s.Max()
	if ok {
		s.items = s.items[:len(s.items)-1]
	}
	return item, ok
}

func (s *Selector[T]) Len() int { return len(s.items) }

func (s *Selector[T]) Cap() int { return s.capacity }

// Ascending returns a copy of the held items, smallest first.
func (s *Selector[T]) Ascending() []T {
	return slices.Clone(s.items)
}
