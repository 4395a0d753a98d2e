package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAllow_PerKeyBurst(t *testing.T) {
	krl := New(PerHour(1), 2, 0)
	defer krl.Stop()

	assert.True(t, krl.Allow("user-1"))
	assert.True(t, krl.Allow("user-1"))
	assert.False(t, krl.Allow("user-1"))

	// Other users are unaffected.
	assert.True(t, krl.Allow("user-2"))
}

func TestPerHour(t *testing.T) {
	assert.Equal(t, rate.Inf, PerHour(0))
	assert.InDelta(t, float64(10)/3600, float64(PerHour(10)), 1e-9)
}

func TestPerMinute(t *testing.T) {
	assert.Equal(t, rate.Inf, PerMinute(0))
	assert.InDelta(t, 2.0, float64(PerMinute(120)), 1e-9)
}

func TestWait_ContextCanceled(t *testing.T) {
	krl := New(PerHour(1), 1, 0)
	defer krl.Stop()

	require.True(t, krl.Allow("user-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, krl.Wait(ctx, "user-1"))
}

func TestSweep_DropsIdleKeys(t *testing.T) {
	krl := New(rate.Inf, 1, 0)
	krl.ttl = time.Minute
	now := time.Now()
	krl.now = func() time.Time { return now }

	krl.Allow("old")
	now = now.Add(2 * time.Minute)
	krl.Allow("fresh")

	krl.sweep()
	assert.Equal(t, 1, krl.Len())
}
