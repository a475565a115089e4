package resilience

import (
	"context"
	"fmt"
	"time"
)

// CallWithin runs fn with a deadline of d; d <= 0 means no extra deadline.
// It returns once the deadline passes even if fn ignores its context, and
// whatever fn produces afterwards is dropped. On expiry the error wraps
// context.DeadlineExceeded, or the parent's own error if ctx ended first.
func CallWithin[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(callCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-callCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("no answer within %v: %w", d, context.DeadlineExceeded)
	}
}
