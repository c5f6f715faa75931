package retry

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned when the attempt budget runs out before the
// operation reports completion.
var ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

// Config bounds a polling or retry loop.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

func (c Config) normalized() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// PollFunc reports whether the awaited condition is reached. Returning an
// error stops polling immediately.
type PollFunc func(ctx context.Context) (done bool, err error)

// Poll invokes fn at a fixed interval until it reports done, fails, the
// context is cancelled, or MaxAttempts is exceeded. The first attempt runs
// immediately.
func Poll(ctx context.Context, cfg Config, fn PollFunc) error {
	cfg = cfg.normalized()

	for attempt := 1; ; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= cfg.MaxAttempts {
			return ErrAttemptsExhausted
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Do runs op, retrying after Interval whenever op fails with an error the
// retryable predicate accepts. Any other error is returned as-is. When the
// attempt budget runs out the last error is returned.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error, retryable func(error) bool) error {
	cfg = cfg.normalized()

	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		last = op(ctx)
		if last == nil {
			return nil
		}
		if retryable != nil && !retryable(last) {
			return last
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return last
}
