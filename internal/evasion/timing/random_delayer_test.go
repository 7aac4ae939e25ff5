package timing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/evasion/timing"
)

func TestDelayCtx_StaysWithinWindow(t *testing.T) {
	d := timing.NewRandomDelayer(10*time.Millisecond, 30*time.Millisecond, 0, nil)

	start := time.Now()
	err := d.DelayCtx(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)

	stats := d.GetStats()
	assert.EqualValues(t, 1, stats["total_delays"])
}

func TestDelayCtx_CancelledContext(t *testing.T) {
	d := timing.NewRandomDelayer(time.Second, 2*time.Second, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := d.DelayCtx(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSetDelayRange_RepairsInvertedBounds(t *testing.T) {
	d := timing.NewRandomDelayer(10*time.Millisecond, 30*time.Millisecond, 0, nil)
	d.SetDelayRange(50*time.Millisecond, 20*time.Millisecond)

	min, max := d.DelayRange()
	assert.LessOrEqual(t, min, max)
}

func TestAdaptiveDelay_RetargetsFromSuccessRate(t *testing.T) {
	d := timing.NewRandomDelayer(10*time.Millisecond, 100*time.Millisecond, 0, nil)

	t.Run("low success widens toward ceiling", func(t *testing.T) {
		d.AdaptiveDelay(0.0, 10*time.Millisecond, 100*time.Millisecond)
		_, max := d.DelayRange()
		assert.Equal(t, 100*time.Millisecond, max)
	})

	t.Run("high success tightens toward floor", func(t *testing.T) {
		d.AdaptiveDelay(1.0, 10*time.Millisecond, 100*time.Millisecond)
		min, max := d.DelayRange()
		assert.Equal(t, 10*time.Millisecond, min)
		assert.Equal(t, 10*time.Millisecond, max)
	})

	t.Run("clamps out of range input", func(t *testing.T) {
		d.AdaptiveDelay(4.2, 10*time.Millisecond, 100*time.Millisecond)
		_, max := d.DelayRange()
		assert.Equal(t, 10*time.Millisecond, max)
	})
}
