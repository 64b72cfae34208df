package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
)

func cell(row, group, qual, val string) storage.Entry {
	return storage.Entry{Key: storage.Key{Row: row, Group: group, Qualifier: qual}, Value: []byte(val)}
}

func scan(t *testing.T, s storage.Store, r storage.Range) []storage.Entry {
	t.Helper()
	cursors, err := s.Cursors(context.Background())
	require.NoError(t, err)
	var out []storage.Entry
	for _, c := range cursors {
		require.NoError(t, c.Seek(context.Background(), r))
		got, err := storage.Collect(c)
		require.NoError(t, err)
		out = append(out, got...)
		c.Close()
	}
	return out
}

func TestEngineMergesMemtableAndSegments(t *testing.T) {
	ctx := context.Background()
	e, err := New(Config{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Write(ctx, []storage.Entry{cell("a", "g", "q", "old"), cell("b", "g", "q", "b")}))
	require.NoError(t, e.Flush())
	assert.Equal(t, 1, e.Segments())

	require.NoError(t, e.Write(ctx, []storage.Entry{cell("a", "g", "q", "new"), cell("c", "g", "q", "c")}))

	got := scan(t, e, storage.Range{Start: "a", End: "c"})
	require.Len(t, got, 2)
	assert.Equal(t, "new", string(got[0].Value))
	assert.Equal(t, "b", got[1].Key.Row)
	require.NoError(t, e.Ping(ctx))
}

func TestEngineFlushesAtSizeAndRecovers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := New(Config{DataDir: dir, SegmentMaxSize: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, e.Write(ctx, []storage.Entry{cell("a", "g", "q", "1")}))
	assert.Equal(t, 1, e.Segments())
	require.NoError(t, e.Close())

	reopened, err := New(Config{DataDir: dir}, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Segments())
	assert.Len(t, scan(t, reopened, storage.Range{}), 1)
}

func TestEngineDeleteShadowsFlushedCells(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := New(Config{DataDir: dir}, nil)
	require.NoError(t, err)

	require.NoError(t, e.Write(ctx, []storage.Entry{cell("a", "g", "q", "1"), cell("a", "g", "r", "2")}))
	require.NoError(t, e.Flush())
	require.NoError(t, e.Delete(ctx, []storage.Key{{Row: "a", Group: "g", Qualifier: "q"}}))

	got := scan(t, e, storage.Range{})
	require.Len(t, got, 1)
	assert.Equal(t, "r", got[0].Key.Qualifier)

	// the tombstone survives its own flush and a restart
	require.NoError(t, e.Close())
	reopened, err := New(Config{DataDir: dir}, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 2, reopened.Segments())
	assert.Len(t, scan(t, reopened, storage.Range{}), 1)

	require.NoError(t, reopened.Write(ctx, []storage.Entry{cell("a", "g", "q", "3")}))
	assert.Len(t, scan(t, reopened, storage.Range{}), 2)
}
