package posting

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
)

// Document is the producer-side input for BuildRows.
type Document struct {
	ID   DocumentID
	Body string
}

// BuildRows produces the posting cells for one document: for every distinct
// n-gram a row, and in each row one cell per distinct n-gram of the
// document. The output grows with the square of the vocabulary size, so
// callers should keep maxN small. Ratios are count over the document's word
// count. Entries are returned in key order.
func BuildRows(doc Document, maxN int, suffix string) []storage.Entry {
	words := tokenizer.Words(doc.Body)
	if len(words) == 0 {
		return nil
	}
	freqs := tokenizer.TermFrequencies(tokenizer.NGramsOf(words, maxN))

	values := make(map[string][]byte, len(freqs))
	for term, count := range freqs {
		values[term] = Value{Count: count, Ratio: float64(count) / float64(len(words))}.Encode()
	}

	group := doc.ID.String()
	entries := make([]storage.Entry, 0, len(freqs)*len(freqs))
	for rowTerm := range freqs {
		row := Row(rowTerm, suffix)
		for qualifier, value := range values {
			entries = append(entries, storage.Entry{
				Key:   storage.Key{Row: row, Group: group, Qualifier: qualifier},
				Value: value,
			})
		}
	}
	storage.SortEntries(entries)
	return entries
}

// manifestPrefix starts the row that records what was written for a URL.
// No term starts with it, so term scans never reach a manifest.
const manifestPrefix = "\x01"

// ManifestKey addresses the manifest of url.
func ManifestKey(url string) storage.Key {
	return storage.Key{Row: manifestPrefix + url}
}

// ManifestRange covers the manifest row of url and no other. A valid URL
// holds no control characters, so no longer manifest row sorts below the
// end bound.
func ManifestRange(url string) storage.Range {
	row := manifestPrefix + url
	return storage.Range{Start: row, End: row + manifestPrefix}
}

// IsManifestRow reports whether row holds a manifest rather than postings.
func IsManifestRow(row string) bool {
	return strings.HasPrefix(row, manifestPrefix)
}

// Manifest records enough of one BuildRows result to rebuild every key it
// produced: the rows are the cross product of Terms under Suffix, all in
// Group.
type Manifest struct {
	Group  string   `json:"group"`
	Suffix string   `json:"suffix"`
	Terms  []string `json:"terms"`
}

// NewManifest describes rows as returned by BuildRows for one document.
func NewManifest(rows []storage.Entry) Manifest {
	if len(rows) == 0 {
		return Manifest{}
	}
	seen := make(map[string]struct{})
	for _, r := range rows {
		seen[r.Key.Qualifier] = struct{}{}
	}
	_, suffix, _ := strings.Cut(rows[0].Key.Row, RowSeparator)
	return Manifest{
		Group:  rows[0].Key.Group,
		Suffix: suffix,
		Terms:  slices.Sorted(maps.Keys(seen)),
	}
}

// Keys lists every posting key the manifest describes.
func (m Manifest) Keys() []storage.Key {
	keys := make([]storage.Key, 0, len(m.Terms)*len(m.Terms))
	for _, rowTerm := range m.Terms {
		row := Row(rowTerm, m.Suffix)
		for _, qualifier := range m.Terms {
			keys = append(keys, storage.Key{Row: row, Group: m.Group, Qualifier: qualifier})
		}
	}
	return keys
}

// Entry renders the manifest as the cell stored under the manifest key of
// url.
func (m Manifest) Entry(url string) (storage.Entry, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("encoding manifest of %s: %w", url, err)
	}
	return storage.Entry{Key: ManifestKey(url), Value: raw}, nil
}

func DecodeManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: manifest: %v", apperrors.ErrCorruptValue, err)
	}
	return m, nil
}
