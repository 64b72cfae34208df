// Package redisstore keeps posting keys in a Redis sorted set and their
// values in a companion hash. All members share score 0, so ZRANGEBYLEX
// returns them in bytewise order and a row range maps onto a lex range.
// Keeping values out of the members lets a rewrite of a cell replace its
// value instead of adding a second member.
package redisstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/redis"
)

// fieldSep separates key parts inside a member. It sorts below every
// printable byte, so member order equals key order.
const fieldSep = "\x00"

// Client is the subset of pkg/redis used by the store.
type Client interface {
	ZAddLexValues(ctx context.Context, key, hashKey string, members, values []string) error
	ZRemLexValues(ctx context.Context, key, hashKey string, members ...string) error
	ZRangeByLex(ctx context.Context, key, min, max string, count int64) ([]string, error)
	HMGet(ctx context.Context, key string, fields ...string) ([]any, error)
	Ping(ctx context.Context) error
	Close() error
}

var _ Client = (*redis.Client)(nil)

type Store struct {
	client    Client
	key       string
	valuesKey string
	batchSize int64
}

// New builds a store over the sorted set at key and the hash at key+":values".
// batchSize bounds each ZRANGEBYLEX call.
func New(client Client, key string, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = 512
	}
	return &Store{client: client, key: key, valuesKey: key + ":values", batchSize: int64(batchSize)}
}

// EncodeMember packs a key into a sorted-set member.
func EncodeMember(k storage.Key) string {
	return k.Row + fieldSep + k.Group + fieldSep + k.Qualifier
}

// DecodeMember unpacks a member written by EncodeMember.
func DecodeMember(member string) (storage.Key, error) {
	parts := strings.SplitN(member, fieldSep, 3)
	if len(parts) != 3 {
		return storage.Key{}, fmt.Errorf("malformed posting member %q", member)
	}
	return storage.Key{Row: parts[0], Group: parts[1], Qualifier: parts[2]}, nil
}

const writeChunk = 1000

func (s *Store) Write(ctx context.Context, entries []storage.Entry) error {
	for start := 0; start < len(entries); start += writeChunk {
		batch := entries[start:min(start+writeChunk, len(entries))]
		members := make([]string, len(batch))
		values := make([]string, len(batch))
		for i, e := range batch {
			members[i], values[i] = EncodeMember(e.Key), string(e.Value)
		}
		if err := s.client.ZAddLexValues(ctx, s.key, s.valuesKey, members, values); err != nil {
			return fmt.Errorf("writing postings to redis: %w", err)
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys []storage.Key) error {
	for start := 0; start < len(keys); start += writeChunk {
		batch := keys[start:min(start+writeChunk, len(keys))]
		members := make([]string, len(batch))
		for i, k := range batch {
			members[i] = EncodeMember(k)
		}
		if err := s.client.ZRemLexValues(ctx, s.key, s.valuesKey, members...); err != nil {
			return fmt.Errorf("deleting postings from redis: %w", err)
		}
	}
	return nil
}

// Cursors returns a single partition.
func (s *Store) Cursors(ctx context.Context) ([]storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []storage.Cursor{&cursor{s: s}}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() error {
	return s.client.Close()
}

// cursor pages through the set in batches, resuming each batch just after
// the last member read, and fetches the values of a batch in one HMGET.
type cursor struct {
	s          *Store
	ctx        context.Context
	min        string
	max        string
	batch      []storage.Entry
	pos        int
	exhausted  bool
	cur        storage.Entry
	valid      bool
	positioned bool
	err        error
}

func (c *cursor) Seek(ctx context.Context, r storage.Range) error {
	c.ctx = ctx
	c.batch = c.batch[:0]
	c.pos = 0
	c.exhausted = false
	c.err = nil
	c.min = "[" + r.Start
	c.max = "+"
	if r.End != "" {
		c.max = "(" + r.End
	}
	c.advance()
	c.positioned = true
	return c.err
}

func (c *cursor) fetch() error {
	members, err := c.s.client.ZRangeByLex(c.ctx, c.s.key, c.min, c.max, c.s.batchSize)
	if err != nil {
		c.err = fmt.Errorf("scanning postings in redis: %w", err)
		return c.err
	}
	c.batch, c.pos = c.batch[:0], 0
	if int64(len(members)) < c.s.batchSize {
		c.exhausted = true
	}
	if len(members) == 0 {
		return nil
	}
	c.min = "(" + members[len(members)-1]
	values, err := c.s.client.HMGet(c.ctx, c.s.valuesKey, members...)
	if err != nil {
		c.err = fmt.Errorf("reading posting values from redis: %w", err)
		return c.err
	}
	for i, m := range members {
		// nil when the cell was deleted between the two reads
		v, ok := values[i].(string)
		if !ok {
			continue
		}
		k, err := DecodeMember(m)
		if err != nil {
			c.err = err
			return err
		}
		c.batch = append(c.batch, storage.Entry{Key: k, Value: []byte(v)})
	}
	return nil
}

func (c *cursor) advance() {
	c.valid = false
	for c.pos >= len(c.batch) {
		if c.exhausted {
			return
		}
		if err := c.fetch(); err != nil {
			return
		}
	}
	c.cur = c.batch[c.pos]
	c.pos++
	c.valid = true
}

func (c *cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.positioned {
		c.positioned = false
	} else if c.valid {
		c.advance()
	}
	return c.valid
}

func (c *cursor) Key() storage.Key { return c.cur.Key }

func (c *cursor) Value() []byte { return c.cur.Value }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	c.batch = nil
	c.valid = false
	return nil
}
