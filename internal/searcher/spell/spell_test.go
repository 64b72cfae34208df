package spell

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/resilience"
)

type vocab map[string]int64

func (v vocab) DocFrequency(term string) (int64, bool) {
	c, ok := v[term]
	return c, ok
}

type stubSuggester struct {
	answers map[string][]string
	err     error
	calls   atomic.Int32
	delay   time.Duration
}

func (s *stubSuggester) Suggest(ctx context.Context, term string, limit int) ([]string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := s.answers[term]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestCorrect(t *testing.T) {
	v := vocab{"apple": 10, "apply": 30, "pie": 50, "ample": 2}
	s := &stubSuggester{answers: map[string][]string{
		"appel": {"apple", "apply", "ample", "appelx"},
		"pye":   {"unknownword"},
	}}

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"most frequent suggestion wins", "appel pie", "apply pie"},
		{"punctuation and case preserved", "Appel, pie!", "apply, pie!"},
		{"no usable suggestion", "pye", ""},
		{"all known", "apple pie", ""},
		{"repeated word", "appel appel", "apply apply"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Correct(context.Background(), tt.query, v, s, 15))
		})
	}
}

func TestCorrectSuggesterFailure(t *testing.T) {
	s := &stubSuggester{err: errors.New("down")}
	assert.Empty(t, Correct(context.Background(), "appel", vocab{}, s, 5))
	assert.Empty(t, Correct(context.Background(), "appel", vocab{}, nil, 5))
}

func TestBleveSuggester(t *testing.T) {
	s, err := NewBleveSuggester([]string{"apple", "apply", "banana", "pie", "search"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n, err := s.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	got, err := s.Suggest(context.Background(), "appel", 10)
	require.NoError(t, err)
	assert.Contains(t, got, "apple")
	assert.Contains(t, got, "apply")
	assert.NotContains(t, got, "banana")

	got, err = s.Suggest(context.Background(), "serch", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"search"}, got)

	got, err = s.Suggest(context.Background(), "zzzzzzzz", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Suggest(context.Background(), "appel", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBleveSuggesterRebuild(t *testing.T) {
	s, err := NewBleveSuggester([]string{"apple"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Rebuild([]string{"banana", "bandana"}))
	n, err := s.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := s.Suggest(context.Background(), "appel", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = s.Suggest(context.Background(), "banan", 10)
	require.NoError(t, err)
	assert.Contains(t, got, "banana")
}

func TestCorrectWithBleve(t *testing.T) {
	v := vocab{"apple": 10, "apply": 3, "pie": 5}
	s, err := NewBleveSuggester([]string{"apple", "apply", "pie"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	assert.Equal(t, "apple pie", Correct(context.Background(), "appel pie", v, s, 15))
}

func TestGuardedTimeoutAndBreaker(t *testing.T) {
	slow := &stubSuggester{delay: time.Second}
	g := NewGuarded(slow, 10*time.Millisecond, nil)
	_, err := g.Suggest(context.Background(), "x", 1)
	assert.ErrorIs(t, err, apperrors.ErrSuggestUnavailable)

	failing := &stubSuggester{err: errors.New("boom")}
	g = NewGuarded(failing, time.Second, nil)
	for range 10 {
		_, err = g.Suggest(context.Background(), "x", 1)
		assert.ErrorIs(t, err, apperrors.ErrSuggestUnavailable)
	}
	assert.Equal(t, resilience.StateOpen, g.State())
	assert.Less(t, failing.calls.Load(), int32(10), "open breaker short-circuits calls")

	ok := &stubSuggester{answers: map[string][]string{"x": {"y"}}}
	got, err := NewGuarded(ok, time.Second, nil).Suggest(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, got)
}
