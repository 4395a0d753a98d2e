package jobs

import (
	"context"
	"math"
	"time"

	"github.com/tagyard/tagyard-server/internal/errors"
)

// RetryPolicy retries a failing operation with exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Factor     float64

	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy waits 2s, 4s, 8s, 16s and 32s between six attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, Base: 2 * time.Second, Factor: 2}
}

// Delay returns the wait before retry n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	return time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(n-1)))
}

// Retryable reports whether err may succeed on a later attempt. Domain
// rejections never do; anything else, including uncoded errors, might.
func Retryable(err error) bool {
	switch errors.CodeOf(err) {
	case errors.CodeValidation, errors.CodeNotFound, errors.CodeForbidden,
		errors.CodeConflict, errors.CodeTerminal:
		return false
	}
	return true
}

// Run calls fn until it succeeds, fails permanently, or retries run out.
// Exhaustion returns a TERMINAL error wrapping the last failure. onRetry, when
// set, is called before each wait.
func (p RetryPolicy) Run(
	ctx context.Context,
	fn func(ctx context.Context, attempt int) error,
	onRetry func(attempt int, delay time.Duration, err error),
) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx, attempt)
		if err == nil || !Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > p.MaxRetries {
			return errors.Terminalf(err, "gave up after %d attempts", attempt)
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
