// Package posting encodes the full-text posting schema: one row per
// (n-gram, write suffix), grouped by a packed document identifier, with one
// qualifier per n-gram of that document. Any single row group therefore
// carries the document's complete term vector.
package posting

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
)

const (
	// RowSeparator joins a term and its write suffix. It cannot appear in a
	// tokenized term.
	RowSeparator = "\x1f"
	// rowLimit is the byte following RowSeparator.
	rowLimit = "\x20"

	// FieldDelimiter separates the parts of a packed document identifier.
	FieldDelimiter = "[ ]"
)

// Row builds the row key for term.
func Row(term, suffix string) string {
	return term + RowSeparator + suffix
}

// TermOf returns the term part of a row key.
func TermOf(row string) string {
	term, _, _ := strings.Cut(row, RowSeparator)
	return term
}

// TermRange covers every row written for term and nothing else, in
// particular no row of a longer n-gram starting with term.
func TermRange(term string) storage.Range {
	return storage.Range{Start: term + RowSeparator, End: term + rowLimit}
}

// DocumentID identifies a document inside a row group.
type DocumentID struct {
	URL      string
	Title    string
	Keywords []string
}

// String packs the identifier as url[ ]title[ ]kw1[ ]kw2...
func (d DocumentID) String() string {
	var b strings.Builder
	b.WriteString(d.URL)
	b.WriteString(FieldDelimiter)
	b.WriteString(d.Title)
	b.WriteString(FieldDelimiter)
	b.WriteString(strings.Join(d.Keywords, FieldDelimiter))
	return b.String()
}

// ParseDocumentID unpacks a group key. Missing title or keywords are left
// empty.
func ParseDocumentID(group string) DocumentID {
	parts := strings.Split(group, FieldDelimiter)
	id := DocumentID{URL: parts[0]}
	if len(parts) > 1 {
		id.Title = parts[1]
	}
	for _, kw := range parts[min(2, len(parts)):] {
		if kw = strings.TrimSpace(kw); kw != "" {
			id.Keywords = append(id.Keywords, kw)
		}
	}
	return id
}

// URLOf returns the URL part of a group key without allocating the rest.
func URLOf(group string) string {
	url, _, _ := strings.Cut(group, FieldDelimiter)
	return url
}

// Value is the payload of a posting cell: how often the qualifier term
// occurs in the document and that count over the document length.
type Value struct {
	Count int
	Ratio float64
}

// Encode renders the value as "count,ratio".
func (v Value) Encode() []byte {
	b := strconv.AppendInt(nil, int64(v.Count), 10)
	b = append(b, ',')
	return strconv.AppendFloat(b, v.Ratio, 'g', -1, 64)
}

// DecodeValue parses "count,ratio". Anything else is ErrCorruptValue.
func DecodeValue(raw []byte) (Value, error) {
	countText, ratioText, ok := strings.Cut(string(raw), ",")
	if !ok {
		return Value{}, fmt.Errorf("%w: missing separator in %q", apperrors.ErrCorruptValue, raw)
	}
	count, err := strconv.Atoi(countText)
	if err != nil {
		return Value{}, fmt.Errorf("%w: count %q", apperrors.ErrCorruptValue, countText)
	}
	ratio, err := strconv.ParseFloat(ratioText, 64)
	if err != nil || math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio < 0 {
		return Value{}, fmt.Errorf("%w: ratio %q", apperrors.ErrCorruptValue, ratioText)
	}
	return Value{Count: count, Ratio: ratio}, nil
}
