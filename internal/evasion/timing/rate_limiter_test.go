package timing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/bl4ck0w1/profilynx/internal/evasion/timing"
)

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := timing.NewRateLimiter(rate.Limit(1), 1, false, nil)
	defer rl.Close()

	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx)
	assert.Error(t, err)
}

func TestRateLimiter_AllowCountsBlocked(t *testing.T) {
	rl := timing.NewRateLimiter(rate.Limit(0.1), 1, false, nil)
	defer rl.Close()

	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	stats := rl.GetStats()
	assert.EqualValues(t, 2, stats["request_count"])
	assert.EqualValues(t, 1, stats["blocked_count"])
}

func TestRateLimiter_SuccessRateSmoothing(t *testing.T) {
	rl := timing.NewRateLimiter(rate.Limit(100), 10, false, nil)
	defer rl.Close()

	assert.Equal(t, 1.0, rl.SuccessRate())

	for i := 0; i < 4; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	rl.RecordSuccess()
	rl.RecordSuccess()
	rl.RecordFailure()
	rl.RecordFailure()

	got := rl.SuccessRate()
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 1.0)
}

func TestRateLimiter_SetRateClampsToBounds(t *testing.T) {
	rl := timing.NewRateLimiter(rate.Limit(5), 2, false, nil)
	defer rl.Close()

	rl.SetRate(rate.Limit(100000))
	stats := rl.GetStats()
	assert.Equal(t, rate.Limit(100), stats["current_rate"])

	rl.SetRate(rate.Limit(0.0001))
	stats = rl.GetStats()
	assert.Equal(t, rate.Limit(0.1), stats["current_rate"])
}

func TestRateLimiter_CloseStopsAdjustLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := timing.NewRateLimiter(rate.Limit(10), 2, true, nil)
	require.NoError(t, rl.Wait(context.Background()))
	rl.RecordSuccess()

	rl.Close()
	rl.Close()
}
