package jobs

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagyard/tagyard-server/internal/errors"
)

func instantPolicy(slept *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p
}

func TestRetryPolicy_Delays(t *testing.T) {
	p := DefaultRetryPolicy()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, p.Delay(i+1))
	}
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	var slept []time.Duration
	calls := 0
	err := instantPolicy(&slept).Run(context.Background(), func(context.Context, int) error {
		calls++
		if calls <= 3 {
			return errors.Transient(stderrors.New("database is locked"))
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, slept)
}

func TestRetryPolicy_Exhaustion(t *testing.T) {
	var slept []time.Duration
	var retries []int
	calls := 0
	err := instantPolicy(&slept).Run(context.Background(), func(context.Context, int) error {
		calls++
		return stderrors.New("connection reset")
	}, func(attempt int, _ time.Duration, _ error) {
		retries = append(retries, attempt)
	})

	assert.ErrorIs(t, err, errors.ErrTerminal)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 6, calls)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, retries)
	assert.Len(t, slept, 5)
}

func TestRetryPolicy_PermanentErrorsStopImmediately(t *testing.T) {
	var slept []time.Duration
	calls := 0
	err := instantPolicy(&slept).Run(context.Background(), func(context.Context, int) error {
		calls++
		return errors.Validation("cycle")
	}, nil)

	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestRetryPolicy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultRetryPolicy()
	err := p.Run(ctx, func(context.Context, int) error {
		cancel()
		return stderrors.New("boom")
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}
