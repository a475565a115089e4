// Package tracing records in-process traces. A request opens a trace with
// Start, each backend call adds a span with Child, and the whole trace is
// written to slog at debug level once the request is done.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ctxKey struct{}

// Trace collects the spans of one request in the order they started.
type Trace struct {
	ID string

	mu    sync.Mutex
	spans []*Span
}

// Span is one timed step. All methods are safe on a nil Span, so code that
// runs without a trace in its context needs no checks.
type Span struct {
	trace  *Trace
	name   string
	depth  int
	start  time.Time
	end    time.Time
	fields []slog.Attr
}

// Start opens a new trace and returns its root span.
func Start(ctx context.Context, id, name string) (context.Context, *Span) {
	t := &Trace{ID: id}
	root := t.add(name, 0)
	return context.WithValue(ctx, ctxKey{}, root), root
}

// Child opens a span under the one carried by ctx. Without a trace in ctx
// it returns ctx unchanged and a nil span.
func Child(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	s := parent.trace.add(name, parent.depth+1)
	return context.WithValue(ctx, ctxKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(ctxKey{}).(*Span)
	return s
}

func (t *Trace) add(name string, depth int) *Span {
	s := &Span{trace: t, name: name, depth: depth, start: time.Now()}
	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()
	return s
}

func (s *Span) Set(key string, value any) {
	if s == nil {
		return
	}
	s.trace.mu.Lock()
	s.fields = append(s.fields, slog.Any(key, value))
	s.trace.mu.Unlock()
}

// End stamps the span. Only the first call counts.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.trace.mu.Lock()
	if s.end.IsZero() {
		s.end = time.Now()
	}
	s.trace.mu.Unlock()
}

func (s *Span) Trace() *Trace {
	if s == nil {
		return nil
	}
	return s.trace
}

// Emit logs one debug record per span: its offset from the start of the
// trace and its duration. Spans still open are reported with open=true.
func (t *Trace) Emit(ctx context.Context, logger *slog.Logger) {
	if t == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	t.mu.Lock()
	spans := make([]Span, len(t.spans))
	for i, s := range t.spans {
		spans[i] = Span{name: s.name, depth: s.depth, start: s.start, end: s.end, fields: append([]slog.Attr(nil), s.fields...)}
	}
	t.mu.Unlock()
	if len(spans) == 0 {
		return
	}

	origin := spans[0].start
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("trace_id", t.ID),
			slog.String("span", s.name),
			slog.Int("depth", s.depth),
			slog.Duration("offset", s.start.Sub(origin)),
		}
		if s.end.IsZero() {
			attrs = append(attrs, slog.Bool("open", true))
		} else {
			attrs = append(attrs, slog.Duration("took", s.end.Sub(s.start)))
		}
		attrs = append(attrs, s.fields...)
		logger.LogAttrs(ctx, slog.LevelDebug, "span", attrs...)
	}
}
