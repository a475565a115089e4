package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Policy says how many times and how patiently an operation is retried.
// Zero fields take defaults: 3 attempts, 100ms doubling to at most 10s,
// with ±10% jitter.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	Jitter   float64
	// Retryable reports whether an error is worth another attempt. Nil
	// retries everything.
	Retryable func(error) bool
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Initial <= 0 {
		p.Initial = 100 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 10 * time.Second
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.Jitter <= 0 || p.Jitter > 1 {
		p.Jitter = 0.1
	}
	return p
}

// Delay is the pause after the n-th consecutive failure, n starting at 1.
// It never exceeds Max.
func (p Policy) Delay(n int) time.Duration {
	p = p.normalized()
	base := float64(p.Initial) * math.Pow(p.Factor, float64(max(n, 1)-1))
	base = math.Min(base, float64(p.Max))
	d := base * (1 + p.Jitter*(2*rand.Float64()-1))
	return time.Duration(math.Min(d, float64(p.Max)))
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx ends. fn receives the attempt number starting at 1. A
// non-retryable error is returned as is; exhaustion wraps the last error.
func (p Policy) Do(ctx context.Context, op string, fn func(attempt int) error) error {
	p = p.normalized()
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(attempt); err == nil {
			if attempt > 1 {
				slog.Debug("operation recovered", "op", op, "attempt", attempt)
			}
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.Attempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempt, err)
		}
		wait := p.Delay(attempt)
		slog.Warn("operation failed, will retry",
			"op", op,
			"attempt", attempt,
			"of", p.Attempts,
			"wait", wait,
			"error", err,
		)
		if err := Sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: retry abandoned: %w", op, err)
		}
	}
}

// Sleep waits for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
