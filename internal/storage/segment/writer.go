// Package segment reads and writes immutable .spdx segment files holding
// sorted posting cells, with a row dictionary for range seeks.
package segment

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	RowCount   uint32
	GroupCount uint32
	DictOffset int64
	DictSize   int64
	DataOffset int64
	DataSize   int64
	EntryCount int64
	CreatedAt  int64
}

// DictEntry maps a row to the offset of its first cell, relative to the
// start of the data block, and the number of cells in that row.
type DictEntry struct {
	Row    string `json:"r"`
	Offset int64  `json:"o"`
	Cells  int    `json:"n"`
}

// Writer serialises sorted entries into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing entries, which
// must already be in key order. It writes to a .tmp file first and renames
// on success.
func (w *Writer) Write(entries []storage.Entry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%d%s", time.Now().UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	bw := bufio.NewWriter(f)
	dataStart := int64(HeaderSize)
	var written int64
	dict := make([]DictEntry, 0)
	groups := make(map[string]struct{})
	var prev storage.Key
	for i, e := range entries {
		if i > 0 && prev.Compare(e.Key) >= 0 {
			return "", fmt.Errorf("entries not strictly sorted at %d", i)
		}
		if i == 0 || e.Key.Row != prev.Row {
			dict = append(dict, DictEntry{Row: e.Key.Row, Offset: written})
		}
		dict[len(dict)-1].Cells++
		groups[e.Key.Group] = struct{}{}
		n, err := writeEntry(bw, e)
		if err != nil {
			return "", fmt.Errorf("writing entry %d: %w", i, err)
		}
		written += n
		prev = e.Key
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("flushing data block: %w", err)
	}

	dictStart := dataStart + written
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	checksum := crc32.ChecksumIEEE(dictData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum)
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(groups)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(written))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(dict)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(groups)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(dataStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(written))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(len(entries)))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(time.Now().Unix()))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}

// writeEntry writes row, group, qualifier and value as length-prefixed
// fields and returns the bytes written.
func writeEntry(w *bufio.Writer, e storage.Entry) (int64, error) {
	var total int64
	var lenBuf [binary.MaxVarintLen64]byte
	for _, field := range [][]byte{[]byte(e.Key.Row), []byte(e.Key.Group), []byte(e.Key.Qualifier), e.Value} {
		n := binary.PutUvarint(lenBuf[:], uint64(len(field)))
		if _, err := w.Write(lenBuf[:n]); err != nil {
			return total, err
		}
		if _, err := w.Write(field); err != nil {
			return total, err
		}
		total += int64(n + len(field))
	}
	return total, nil
}
