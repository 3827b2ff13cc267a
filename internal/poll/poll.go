// File: internal/poll/poll.go
// Package poll provides the single condition-polling primitive behind every
// "wait for X" in the system: page readiness, element appearance, modal
// population and submission confirmation are all one predicate passed here.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when the check never succeeded within the
// configured attempt budget.
var ErrExhausted = errors.New("poll: attempts exhausted")

// Config bounds one polling loop. Interval separates attempts; Backoff, when
// non-zero, is added to the delay once per completed attempt so callers can
// ease off during heavy page transitions.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
	Backoff     time.Duration
}

// Until repeatedly invokes check until it reports ok, the attempt budget runs
// out, or the context is cancelled. The check is invoked at most MaxAttempts
// times. A check error counts as
// "not ready yet" rather than aborting the loop: mid-transition pages throw
// transient evaluation errors that the next attempt usually survives.
func Until[T any](ctx context.Context, cfg Config, check func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, ok, err := check(ctx)
		if ok {
			return v, nil
		}
		if err != nil {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		delay := cfg.Interval + time.Duration(attempt)*cfg.Backoff
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	if lastErr != nil {
		return zero, fmt.Errorf("%w (last check error: %v)", ErrExhausted, lastErr)
	}
	return zero, ErrExhausted
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sleep is a context-aware delay for callers that need a settle pause between
// actions outside of a polling loop.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}
