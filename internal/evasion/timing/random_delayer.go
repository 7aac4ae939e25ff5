package timing

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RandomDelayer spaces probe requests with a randomized pause so traffic does
// not arrive in lockstep. The window can be retargeted while probes run.
type RandomDelayer struct {
	minDelay time.Duration
	maxDelay time.Duration
	jitter   float64
	logger   *logrus.Logger

	mu          sync.RWMutex
	delayCount  int64
	totalDelay  time.Duration
	lastDelays  []time.Duration
	statsWindow int
}

func NewRandomDelayer(minDelay, maxDelay time.Duration, jitter float64, logger *logrus.Logger) *RandomDelayer {
	if logger == nil {
		logger = logrus.New()
	}
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &RandomDelayer{
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		jitter:      jitter,
		logger:      logger,
		lastDelays:  make([]time.Duration, 0, 100),
		statsWindow: 100,
	}
}

// DelayCtx blocks for one randomized pause or until ctx is done.
func (rd *RandomDelayer) DelayCtx(ctx context.Context) error {
	d := rd.calculateDelay()
	rd.recordDelay(d)

	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rd *RandomDelayer) calculateDelay() time.Duration {
	rd.mu.RLock()
	min := rd.minDelay
	max := rd.maxDelay
	jitter := rd.jitter
	rd.mu.RUnlock()

	base := min
	if max > min {
		rangeNs := int64(max - min)
		if r, err := rand.Int(rand.Reader, big.NewInt(rangeNs)); err == nil {
			base += time.Duration(r.Int64())
		}
	}

	if jitter > 0 && base > 0 {
		jRange := float64(base) * jitter
		if jRange >= 1 {
			if r, err := rand.Int(rand.Reader, big.NewInt(int64(jRange*2))); err == nil {
				base += time.Duration(r.Int64()) - time.Duration(jRange)
			}
		}
	}

	if base < 0 {
		base = 0
	}
	return base
}

func (rd *RandomDelayer) recordDelay(d time.Duration) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.delayCount++
	rd.totalDelay += d

	if len(rd.lastDelays) >= rd.statsWindow {
		rd.lastDelays = rd.lastDelays[1:]
	}
	rd.lastDelays = append(rd.lastDelays, d)
}

func (rd *RandomDelayer) SetDelayRange(min, max time.Duration) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if max < min {
		max = min
	}
	rd.minDelay = min
	rd.maxDelay = max
}

func (rd *RandomDelayer) DelayRange() (time.Duration, time.Duration) {
	rd.mu.RLock()
	defer rd.mu.RUnlock()
	return rd.minDelay, rd.maxDelay
}

// AdaptiveDelay retargets the window from an observed success rate: the worse
// the probes fare, the closer the window moves to its configured ceiling.
func (rd *RandomDelayer) AdaptiveDelay(successRate float64, minDelay, maxDelay time.Duration) {
	if successRate < 0 {
		successRate = 0
	} else if successRate > 1 {
		successRate = 1
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	spanMs := float64(maxDelay-minDelay) / float64(time.Millisecond)
	adjustment := 1.0 - successRate
	target := minDelay + time.Duration(adjustment*spanMs)*time.Millisecond

	if target < minDelay {
		target = minDelay
	}
	if target > maxDelay {
		target = maxDelay
	}
	rd.SetDelayRange(minDelay, target)
}

func (rd *RandomDelayer) GetStats() map[string]interface{} {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	var recentAvg time.Duration
	if n := len(rd.lastDelays); n > 0 {
		var recentTotal time.Duration
		for _, d := range rd.lastDelays {
			recentTotal += d
		}
		recentAvg = recentTotal / time.Duration(n)
	}

	avg := time.Duration(0)
	if rd.delayCount > 0 {
		avg = rd.totalDelay / time.Duration(rd.delayCount)
	}

	return map[string]interface{}{
		"total_delays":     rd.delayCount,
		"total_delay_time": rd.totalDelay,
		"average_delay":    avg,
		"recent_avg_delay": recentAvg,
		"min_delay":        rd.minDelay,
		"max_delay":        rd.maxDelay,
		"jitter":           rd.jitter,
	}
}
