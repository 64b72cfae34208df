// Package tracing records in-process span trees (search, scan, suggest)
// carried through context and logs each sampled trace as one structured
// record.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/config"
)

type spanKey struct{}

// Span is a timed operation. A nil *Span ignores every call, so code can
// annotate whatever span the context holds.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	Attrs    map[string]any
	Children []*Span
}

func newSpan(name, traceID string) *Span {
	return &Span{Name: name, TraceID: traceID, Start: time.Now(), Attrs: map[string]any{}}
}

// StartSpan opens a root span. An empty traceID gets a fresh UUID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	s := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan opens a span under the one in ctx, or a detached span when
// ctx has none.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}
	child := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.Start)
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// attrs renders the span and its subtree as slog attributes, children as
// groups named after them.
func (s *Span) attrs() []slog.Attr {
	s.mu.Lock()
	out := make([]slog.Attr, 0, len(s.Attrs)+len(s.Children)+1)
	out = append(out, slog.Int64("duration_ms", s.Duration.Milliseconds()))
	for k, v := range s.Attrs {
		out = append(out, slog.Any(k, v))
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	for _, c := range children {
		out = append(out, slog.Attr{Key: c.Name, Value: slog.GroupValue(c.attrs()...)})
	}
	return out
}

// Tracer decides which finished root spans are logged. A nil *Tracer never
// logs.
type Tracer struct {
	enabled    bool
	sampleRate float64
	logger     *slog.Logger
}

func NewTracer(cfg config.TracingConfig) *Tracer {
	return &Tracer{
		enabled:    cfg.Enabled,
		sampleRate: cfg.SampleRate,
		logger:     slog.Default().With("component", "tracing"),
	}
}

func (t *Tracer) sampled() bool {
	return t != nil && t.enabled && (t.sampleRate >= 1 || rand.Float64() < t.sampleRate)
}

// Finish ends the root span and logs its tree when the trace is sampled.
func (t *Tracer) Finish(s *Span) {
	s.End()
	if s == nil || !t.sampled() {
		return
	}
	attrs := append([]slog.Attr{slog.String("trace_id", s.TraceID)}, s.attrs()...)
	t.logger.LogAttrs(context.Background(), slog.LevelInfo, "trace "+s.Name, attrs...)
}
