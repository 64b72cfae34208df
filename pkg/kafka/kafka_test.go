package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/resilience"
)

type refreshMessage struct {
	Reason string `json:"reason"`
}

func TestDecodeJSON(t *testing.T) {
	msg, err := DecodeJSON[refreshMessage]([]byte(`{"reason":"pagerank rerun"}`))
	require.NoError(t, err)
	assert.Equal(t, "pagerank rerun", msg.Reason)

	_, err = DecodeJSON[refreshMessage]([]byte(`{`))
	assert.Error(t, err)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerEncodesEvents(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "analytics")
	var _ Publisher = p

	require.NoError(t, p.Publish(context.Background(), Event{Key: "apple", Value: refreshMessage{Reason: "r"}}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "apple", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"reason":"r"}`, string(w.msgs[0].Value))

	err := p.PublishBatch(context.Background(), []Event{{Key: "ok", Value: 1}, {Key: "bad", Value: make(chan int)}})
	assert.ErrorContains(t, err, `encoding event "bad"`)
	assert.Len(t, w.msgs, 1)

	w.err = errors.New("broker down")
	assert.ErrorContains(t, p.Publish(context.Background(), Event{Key: "k", Value: 1}), "broker down")
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	close(r.drained)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := &fakeReader{
		pending: []kafka.Message{
			{Offset: 1, Value: []byte("flaky")},
			{Offset: 2, Value: []byte("poison")},
			{Offset: 3, Value: []byte("ok")},
		},
		drained: make(chan struct{}),
	}
	calls := map[string]int{}
	c := newConsumer(r, "documents", func(_ context.Context, _, value []byte) error {
		calls[string(value)]++
		switch string(value) {
		case "flaky":
			if calls["flaky"] < 3 {
				return errors.New("store unavailable")
			}
		case "poison":
			return resilience.Permanent(errors.New("unparseable"))
		}
		return nil
	})
	c.retry = resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	<-r.drained
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 3, calls["flaky"])
	assert.Equal(t, 1, calls["poison"])
	assert.Equal(t, 1, calls["ok"])
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestConsumerLeavesMessageUncommittedOnShutdown(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Offset: 7}}, drained: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(r, "documents", func(context.Context, []byte, []byte) error {
		cancel()
		return errors.New("store unavailable")
	})
	c.retry = resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}

	require.NoError(t, c.Start(ctx))
	assert.Empty(t, r.committed)
}
