package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/config"
)

func TestChildSpansInheritTraceID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "")
	require.NotEmpty(t, root.TraceID)

	_, scan := StartChildSpan(ctx, "scan")
	scan.SetAttr("partitions", 4)
	scan.End()

	assert.Equal(t, root.TraceID, scan.TraceID)
	require.Len(t, root.Children, 1)
	assert.Equal(t, 4, root.Children[0].Attrs["partitions"])
	assert.Same(t, root, SpanFromContext(ctx))
}

func TestTracerFinishLogsWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracer(config.TracingConfig{Enabled: true, SampleRate: 1})
	tr.logger = slog.New(slog.NewTextHandler(&buf, nil))

	ctx, root := StartSpan(context.Background(), "search", "trace-1")
	_, child := StartChildSpan(ctx, "suggest")
	child.End()
	tr.Finish(root)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `msg="trace search"`)
	assert.Contains(t, out, "trace_id=trace-1")
	assert.Contains(t, out, "suggest.duration_ms=")

	var nilTracer *Tracer
	nilTracer.Finish(root)
}

func TestTracerDisabledAndNilSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracer(config.TracingConfig{Enabled: false, SampleRate: 1})
	tr.logger = slog.New(slog.NewTextHandler(&buf, nil))
	_, root := StartSpan(context.Background(), "search", "")
	tr.Finish(root)
	assert.Empty(t, buf.String())

	var none *Span
	none.SetAttr("k", 1)
	none.End()
	SpanFromContext(context.Background()).SetAttr("pivot", "apple")

	ctx, detached := StartChildSpan(context.Background(), "scan")
	assert.NotEmpty(t, detached.TraceID)
	assert.Same(t, detached, SpanFromContext(ctx))
}
