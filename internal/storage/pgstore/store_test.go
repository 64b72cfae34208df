package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/postgres"
)

// newTestStore connects using FS_TEST_POSTGRES_HOST or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	host := os.Getenv("FS_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("FS_TEST_POSTGRES_HOST not set")
	}
	cfg := config.Default().Postgres
	cfg.Host = host
	client, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Migrate(context.Background()))
	_, err = client.DB.Exec(`DELETE FROM postings WHERE row_key LIKE 'pgtest%'`)
	require.NoError(t, err)
	return New(client.DB)
}

func TestWriteAndScanRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []storage.Entry{
		{Key: storage.Key{Row: "pgtest\x1f1", Group: "b", Qualifier: "pgtest"}, Value: []byte("1,1")},
		{Key: storage.Key{Row: "pgtest\x1f1", Group: "a", Qualifier: "pgtest"}, Value: []byte("1,1")},
		{Key: storage.Key{Row: "pgtest more\x1f1", Group: "a", Qualifier: "pgtest"}, Value: []byte("1,1")},
	}
	require.NoError(t, s.Write(ctx, entries))
	require.NoError(t, s.Write(ctx, entries[:1]))

	cursors, err := s.Cursors(ctx)
	require.NoError(t, err)
	c := cursors[0]
	defer c.Close()
	require.NoError(t, c.Seek(ctx, storage.Range{Start: "pgtest\x1f", End: "pgtest\x20"}))
	got, err := storage.Collect(c)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key.Group)
	assert.Equal(t, "b", got[1].Key.Group)
}

func TestDeleteRemovesRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	keep := storage.Key{Row: "pgtest\x1f1", Group: "a", Qualifier: "pgtest"}
	drop := storage.Key{Row: "pgtest\x1f1", Group: "b", Qualifier: "pgtest"}
	require.NoError(t, s.Write(ctx, []storage.Entry{{Key: keep, Value: []byte("1,1")}, {Key: drop, Value: []byte("1,1")}}))
	require.NoError(t, s.Delete(ctx, []storage.Key{drop, {Row: "pgtest missing", Group: "x", Qualifier: "y"}}))

	cursors, err := s.Cursors(ctx)
	require.NoError(t, err)
	c := cursors[0]
	defer c.Close()
	require.NoError(t, c.Seek(ctx, storage.Range{Start: "pgtest\x1f", End: "pgtest\x20"}))
	got, err := storage.Collect(c)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, keep, got[0].Key)
}
