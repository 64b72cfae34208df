// Package pgstore keeps posting cells in the Postgres postings table. Range
// scans stream rows ordered by the "C" collation, which matches bytewise key
// order.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
)

const (
	scanBounded = `SELECT row_key, doc_group, qualifier, value FROM postings
		WHERE row_key >= $1 AND row_key < $2
		ORDER BY row_key, doc_group, qualifier`
	scanOpen = `SELECT row_key, doc_group, qualifier, value FROM postings
		WHERE row_key >= $1
		ORDER BY row_key, doc_group, qualifier`
	upsert = `INSERT INTO postings (row_key, doc_group, qualifier, value)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[])
		ON CONFLICT (row_key, doc_group, qualifier) DO UPDATE SET value = EXCLUDED.value`
	remove = `DELETE FROM postings p
		USING unnest($1::text[], $2::text[], $3::text[]) AS k(row_key, doc_group, qualifier)
		WHERE p.row_key = k.row_key AND p.doc_group = k.doc_group AND p.qualifier = k.qualifier`
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Write upserts entries in a single statement per chunk inside one
// transaction.
func (s *Store) Write(ctx context.Context, entries []storage.Entry) error {
	const chunk = 2000
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning posting write: %w", err)
	}
	for start := 0; start < len(entries); start += chunk {
		batch := entries[start:min(start+chunk, len(entries))]
		rows := make([]string, len(batch))
		groups := make([]string, len(batch))
		quals := make([]string, len(batch))
		values := make([]string, len(batch))
		for i, e := range batch {
			rows[i], groups[i], quals[i], values[i] = e.Key.Row, e.Key.Group, e.Key.Qualifier, string(e.Value)
		}
		if _, err := tx.ExecContext(ctx, upsert,
			pq.Array(rows), pq.Array(groups), pq.Array(quals), pq.Array(values),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting postings: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing postings: %w", err)
	}
	return nil
}

// Delete removes keys in chunks inside one transaction.
func (s *Store) Delete(ctx context.Context, keys []storage.Key) error {
	const chunk = 2000
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning posting delete: %w", err)
	}
	for start := 0; start < len(keys); start += chunk {
		batch := keys[start:min(start+chunk, len(keys))]
		rows := make([]string, len(batch))
		groups := make([]string, len(batch))
		quals := make([]string, len(batch))
		for i, k := range batch {
			rows[i], groups[i], quals[i] = k.Row, k.Group, k.Qualifier
		}
		if _, err := tx.ExecContext(ctx, remove, pq.Array(rows), pq.Array(groups), pq.Array(quals)); err != nil {
			tx.Rollback()
			return fmt.Errorf("deleting postings: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing posting delete: %w", err)
	}
	return nil
}

// Cursors returns a single partition.
func (s *Store) Cursors(ctx context.Context) ([]storage.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []storage.Cursor{&cursor{db: s.db}}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the postgres client.
func (s *Store) Close() error {
	return nil
}

type cursor struct {
	db         *sql.DB
	rows       *sql.Rows
	cur        storage.Entry
	valid      bool
	positioned bool
	err        error
}

func (c *cursor) Seek(ctx context.Context, r storage.Range) error {
	c.closeRows()
	c.err = nil
	var err error
	if r.End == "" {
		c.rows, err = c.db.QueryContext(ctx, scanOpen, r.Start)
	} else {
		c.rows, err = c.db.QueryContext(ctx, scanBounded, r.Start, r.End)
	}
	if err != nil {
		c.err = fmt.Errorf("scanning postings: %w", err)
		return c.err
	}
	c.read()
	c.positioned = true
	return c.err
}

func (c *cursor) read() {
	c.valid = false
	if c.rows == nil {
		return
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = fmt.Errorf("scanning postings: %w", err)
		}
		c.closeRows()
		return
	}
	var e storage.Entry
	var value string
	if err := c.rows.Scan(&e.Key.Row, &e.Key.Group, &e.Key.Qualifier, &value); err != nil {
		c.err = fmt.Errorf("reading posting row: %w", err)
		c.closeRows()
		return
	}
	e.Value = []byte(value)
	c.cur = e
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

func (c *cursor) closeRows() {
	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}
}

func (c *cursor) Close() error {
	c.closeRows()
	c.valid = false
	return nil
}
