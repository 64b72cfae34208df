// Package postgres opens the lib/pq connection pool shared by the Postgres
// posting store and the ranking-table loader, and owns their schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/config"
)

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// schema holds the posting table and the two ranking tables. Row keys are
// compared with the "C" collation so ORDER BY matches bytewise key order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS postings (
		row_key   TEXT COLLATE "C" NOT NULL,
		doc_group TEXT COLLATE "C" NOT NULL,
		qualifier TEXT COLLATE "C" NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (row_key, doc_group, qualifier)
	)`,
	`CREATE TABLE IF NOT EXISTS sample_terms (
		term      TEXT PRIMARY KEY,
		doc_count BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS authority_scores (
		url   TEXT PRIMARY KEY,
		score DOUBLE PRECISION NOT NULL
	)`,
}

// Migrate creates the tables used by the search service if they are missing.
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
