package segment

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
)

// maxFieldLen guards against allocating absurd buffers on a damaged file.
const maxFieldLen = 1 << 24

type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		RowCount:   binary.LittleEndian.Uint32(headerBytes[8:12]),
		GroupCount: binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		DataOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		DataSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		EntryCount: int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}
	if header.Version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		f.Close()
		return nil, fmt.Errorf("dictionary checksum mismatch in %s", path)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
	}, nil
}

// Cursor returns a new cursor over the segment. Cursors share the file and
// stay valid until the Reader is closed.
func (r *Reader) Cursor() storage.Cursor {
	return &cursor{r: r}
}

func (r *Reader) Rows() int {
	return len(r.dict)
}

func (r *Reader) Entries() int64 {
	return r.header.EntryCount
}

func (r *Reader) GroupCount() uint32 {
	return r.header.GroupCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}

type cursor struct {
	r          *Reader
	rng        storage.Range
	br         *bufio.Reader
	cur        storage.Entry
	valid      bool
	positioned bool
	err        error
}

func (c *cursor) Seek(ctx context.Context, rng storage.Range) error {
	c.rng = rng
	c.valid = false
	c.err = nil
	if err := ctx.Err(); err != nil {
		c.err = err
		return err
	}
	idx := sort.Search(len(c.r.dict), func(i int) bool {
		return c.r.dict[i].Row >= rng.Start
	})
	c.positioned = true
	if idx >= len(c.r.dict) {
		c.br = nil
		return nil
	}
	off := c.r.dict[idx].Offset
	section := io.NewSectionReader(c.r.file, c.r.header.DataOffset+off, c.r.header.DataSize-off)
	c.br = bufio.NewReaderSize(section, 32*1024)
	c.read()
	return c.err
}

// read decodes the next cell, leaving valid false at the end of the range.
func (c *cursor) read() {
	c.valid = false
	if c.br == nil {
		return
	}
	var fields [4][]byte
	for i := range fields {
		n, err := binary.ReadUvarint(c.br)
		if err != nil {
			if i == 0 && errors.Is(err, io.EOF) {
				c.br = nil
				return
			}
			c.err = fmt.Errorf("reading %s: %w", c.r.filePath, err)
			return
		}
		if n > maxFieldLen {
			c.err = fmt.Errorf("reading %s: field length %d exceeds limit", c.r.filePath, n)
			return
		}
		fields[i] = make([]byte, n)
		if _, err := io.ReadFull(c.br, fields[i]); err != nil {
			c.err = fmt.Errorf("reading %s: %w", c.r.filePath, err)
			return
		}
	}
	row := string(fields[0])
	if c.rng.Past(row) {
		c.br = nil
		return
	}
	c.cur = storage.Entry{
		Key:   storage.Key{Row: row, Group: string(fields[1]), Qualifier: string(fields[2])},
		Value: fields[3],
	}
	c.valid = true
}

func (c *cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.positioned {
		c.positioned = false
	} else if c.valid {
		c.read()
	}
	return c.valid
}

func (c *cursor) Key() storage.Key { return c.cur.Key }

func (c *cursor) Value() []byte { return c.cur.Value }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	c.br = nil
	c.valid = false
	return nil
}
