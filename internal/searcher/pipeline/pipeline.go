// Package pipeline holds the query-time cursor stages. Each stage wraps a
// storage.Cursor and is itself a storage.Cursor, so a chain can run inside a
// store partition or in the query service unchanged.
package pipeline

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/topk"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
)

// Stage wraps a cursor with another cursor.
type Stage func(storage.Cursor) storage.Cursor

// Chain applies stages to src in order; the last stage is outermost.
func Chain(src storage.Cursor, stages ...Stage) storage.Cursor {
	c := src
	for _, stage := range stages {
		c = stage(c)
	}
	return c
}

const rankSize = 8

// EncodeRank renders a rank as 8 big-endian IEEE-754 bytes.
func EncodeRank(rank float64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, rankSize), math.Float64bits(rank))
}

func DecodeRank(raw []byte) (float64, error) {
	if len(raw) != rankSize {
		return 0, fmt.Errorf("%w: rank payload of %d bytes", apperrors.ErrCorruptValue, len(raw))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
}

const totalPrefix = "#total:"

// withTotal marks key as the last entry of a ranked page.
func withTotal(key storage.Key, total int) storage.Key {
	key.Qualifier = totalPrefix + strconv.Itoa(total)
	return key
}

// TotalFromKey reads the match count carried by the last entry a Ranking
// stage emits.
func TotalFromKey(key storage.Key) (int, bool) {
	raw, ok := strings.CutPrefix(key.Qualifier, totalPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Candidate is a scored document: the first key of its row group and its
// rank.
type Candidate struct {
	Key  storage.Key
	Rank float64
}

// CompareCandidates orders candidates from worst to best: lower rank first,
// then longer URL, then lexicographically greater URL, then greater group
// and row. Qualifiers are ignored since a Ranking stage rewrites them. The
// order is total over distinct documents, so pages are stable across
// requests.
func CompareCandidates(a, b Candidate) int {
	if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
		return c
	}
	ua, ub := posting.URLOf(a.Key.Group), posting.URLOf(b.Key.Group)
	if c := cmp.Compare(len(ub), len(ua)); c != 0 {
		return c
	}
	if c := cmp.Compare(ub, ua); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Key.Group, a.Key.Group); c != 0 {
		return c
	}
	return cmp.Compare(b.Key.Row, a.Key.Row)
}

// NewSelector sizes a selector for pages 1..page.
func NewSelector(page, pageSize int) *topk.Selector[Candidate] {
	return topk.New(page*pageSize, CompareCandidates)
}

// PageOf removes the entries of the requested page from sel, worst first.
// sel must have been fed every one of total candidates.
func PageOf(sel *topk.Selector[Candidate], total, page, pageSize int) []Candidate {
	count := pageSize
	if pageSize*page > total {
		count = total - pageSize*(page-1)
	}
	count = min(count, sel.Len())
	if count <= 0 {
		return nil
	}
	out := make([]Candidate, 0, count)
	for range count {
		c, _ := sel.PopMin()
		out = append(out, c)
	}
	return out
}
