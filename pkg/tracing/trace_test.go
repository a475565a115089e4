package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestChildrenShareTrace(t *testing.T) {
	ctx, root := Start(context.Background(), "req-1", "lookup")

	var wg sync.WaitGroup
	for _, name := range []string{"local", "amagama"} {
		wg.Go(func() {
			_, child := Child(ctx, "backend."+name)
			child.Set("backend", name)
			child.End()
		})
	}
	wg.Wait()
	root.End()

	assert.Same(t, root, FromContext(ctx))
	tr := root.Trace()
	require.Len(t, tr.spans, 3)
	for _, s := range tr.spans[1:] {
		assert.Same(t, tr, s.trace)
		assert.Equal(t, 1, s.depth)
	}

	var buf bytes.Buffer
	tr.Emit(ctx, debugLogger(&buf))
	out := buf.String()
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("msg=span")))
	assert.Contains(t, out, "trace_id=req-1")
	assert.Contains(t, out, "backend=amagama")
	assert.NotContains(t, out, "open=true")
}

func TestOpenSpansAreFlagged(t *testing.T) {
	ctx, root := Start(context.Background(), "req-2", "lookup")
	Child(ctx, "backend.slow")
	root.End()

	var buf bytes.Buffer
	root.Trace().Emit(ctx, debugLogger(&buf))
	assert.Contains(t, buf.String(), "open=true")
}

func TestWithoutTraceIsNoop(t *testing.T) {
	ctx, span := Child(context.Background(), "orphan")
	assert.Nil(t, span)
	assert.Nil(t, FromContext(ctx))
	span.Set("k", 1)
	span.End()
	span.Trace().Emit(ctx, nil)
}

func TestEmitSkippedAboveDebug(t *testing.T) {
	_, root := Start(context.Background(), "req-3", "lookup")
	root.End()

	var buf bytes.Buffer
	root.Trace().Emit(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Empty(t, buf.String())
}
