package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/resilience"
)

// guarded wraps a source with its per-backend timeout and circuit breaker
// and maps every failure to ErrBackendTimeout or ErrBackendUnavailable.
// Candidates it returns carry the backend's configured name.
type guarded struct {
	name    string
	timeout time.Duration
	inner   source.MatchSource
	breaker *resilience.Breaker
	metrics *metrics.Metrics
}

func (g *guarded) Lookup(ctx context.Context, q source.Query) ([]tm.MatchCandidate, error) {
	start := time.Now()
	if err := g.breaker.Allow(); err != nil {
		g.metrics.ObserveBackend(g.name, "unavailable", time.Since(start))
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrBackendUnavailable, g.name, err)
	}
	out, err := resilience.CallWithin(ctx, g.timeout, func(ctx context.Context) ([]tm.MatchCandidate, error) {
		return g.inner.Lookup(ctx, q)
	})
	g.breaker.Record(err != nil && countsAsFailure(ctx, err))
	if err != nil {
		err = classify(ctx, g.name, err)
		g.metrics.ObserveBackend(g.name, outcome(err), time.Since(start))
		return nil, err
	}

	g.metrics.ObserveBackend(g.name, "ok", time.Since(start))
	for i := range out {
		out[i].Backend = g.name
	}
	if out == nil {
		out = []tm.MatchCandidate{}
	}
	return out, nil
}

// countsAsFailure keeps caller mistakes and caller cancellation from
// tripping the breaker.
func countsAsFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, apperrors.ErrInvalidInput)
}

func classify(ctx context.Context, name string, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrBackendTimeout),
		errors.Is(err, apperrors.ErrBackendUnavailable):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %s: %w", apperrors.ErrBackendTimeout, name, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", apperrors.ErrBackendTimeout, name, err)
	default:
		return fmt.Errorf("%w: %s: %w", apperrors.ErrBackendUnavailable, name, err)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrBackendTimeout):
		return "timeout"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	default:
		return "unavailable"
	}
}
