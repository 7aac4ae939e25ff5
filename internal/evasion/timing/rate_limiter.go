package timing

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket with success-rate tracking. In adaptive
// mode a background loop nudges the rate up while probes succeed and backs
// off when targets start refusing.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *logrus.Logger

	mu           sync.RWMutex
	baseRate     rate.Limit
	burst        int
	adaptive     bool
	successRate  float64
	requestCount int64
	successCount int64
	blockedCount int64

	adjustmentStep    float64
	minRate           rate.Limit
	maxRate           rate.Limit
	increaseThreshold float64
	decreaseThreshold float64

	successEMA     float64
	successEMAInit bool
	emaAlpha       float64

	adjustInterval time.Duration
	adjustStop     chan struct{}
	adjustDone     chan struct{}
}

func NewRateLimiter(baseRate rate.Limit, burst int, adaptive bool, logger *logrus.Logger) *RateLimiter {
	if logger == nil {
		logger = logrus.New()
	}
	if burst < 1 {
		burst = 1
	}

	rl := &RateLimiter{
		limiter:           rate.NewLimiter(baseRate, burst),
		logger:            logger,
		baseRate:          baseRate,
		burst:             burst,
		adaptive:          adaptive,
		successRate:       1.0,
		adjustmentStep:    0.10,
		minRate:           rate.Limit(0.1),
		maxRate:           rate.Limit(100),
		increaseThreshold: 0.90,
		decreaseThreshold: 0.50,
		emaAlpha:          0.2,
		adjustInterval:    time.Minute,
	}

	if adaptive {
		rl.adjustStop = make(chan struct{})
		rl.adjustDone = make(chan struct{})
		go rl.adjustLoop()
	}
	return rl
}

func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	rl.requestCount++
	rl.mu.Unlock()

	if err := rl.limiter.Wait(ctx); err != nil {
		rl.mu.Lock()
		rl.blockedCount++
		rl.mu.Unlock()
		return err
	}
	return nil
}

func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	rl.requestCount++
	allowed := rl.limiter.Allow()
	if !allowed {
		rl.blockedCount++
	}
	rl.mu.Unlock()
	return allowed
}

func (rl *RateLimiter) RecordSuccess() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.successCount++
	rl.updateSuccessRateLocked()
}

func (rl *RateLimiter) RecordFailure() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.updateSuccessRateLocked()
}

func (rl *RateLimiter) updateSuccessRateLocked() {
	total := rl.requestCount
	if total <= 0 {
		return
	}
	raw := float64(rl.successCount) / float64(total)
	rl.successRate = raw
	if !rl.successEMAInit {
		rl.successEMA = raw
		rl.successEMAInit = true
	} else {
		rl.successEMA = rl.emaAlpha*raw + (1-rl.emaAlpha)*rl.successEMA
	}
}

// SuccessRate reports the smoothed success rate, 1.0 before any sample.
func (rl *RateLimiter) SuccessRate() float64 {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if !rl.successEMAInit {
		return 1.0
	}
	return rl.successEMA
}

func (rl *RateLimiter) adjustLoop() {
	defer close(rl.adjustDone)
	ticker := time.NewTicker(rl.adjustInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.adjustRate()
			rl.mu.Lock()
			rl.requestCount = 0
			rl.successCount = 0
			rl.blockedCount = 0
			rl.mu.Unlock()
		case <-rl.adjustStop:
			return
		}
	}
}

func (rl *RateLimiter) adjustRate() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	current := rl.limiter.Limit()
	newRate := current
	success := rl.successEMA
	if !rl.successEMAInit {
		success = rl.successRate
	}

	switch {
	case success > rl.increaseThreshold:
		newRate = current * rate.Limit(1+rl.adjustmentStep)
	case success < rl.decreaseThreshold:
		newRate = current * rate.Limit(1-rl.adjustmentStep)
	default:
		// hold steady
	}

	if newRate < rl.minRate {
		newRate = rl.minRate
	}
	if newRate > rl.maxRate {
		newRate = rl.maxRate
	}

	if newRate != current {
		rl.limiter.SetLimit(newRate)
		rl.logger.Infof("Adjusted rate limit from %.2f to %.2f (successEMA=%.2f)", current, newRate, success)
	}
}

func (rl *RateLimiter) SetRate(newRate rate.Limit) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if newRate < rl.minRate {
		newRate = rl.minRate
	}
	if newRate > rl.maxRate {
		newRate = rl.maxRate
	}
	rl.baseRate = newRate
	rl.limiter.SetLimit(newRate)
}

func (rl *RateLimiter) SetBurst(newBurst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if newBurst < 1 {
		newBurst = 1
	}
	rl.burst = newBurst
	rl.limiter.SetBurst(newBurst)
}

// Close stops the adaptive adjustment loop. Safe to call on a non-adaptive
// limiter and safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.mu.Lock()
	stop := rl.adjustStop
	done := rl.adjustDone
	rl.adjustStop = nil
	rl.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return map[string]interface{}{
		"current_rate":     rl.limiter.Limit(),
		"base_rate":        rl.baseRate,
		"burst":            rl.burst,
		"adaptive":         rl.adaptive,
		"success_rate_raw": rl.successRate,
		"success_rate_ema": rl.successEMA,
		"request_count":    rl.requestCount,
		"success_count":    rl.successCount,
		"blocked_count":    rl.blockedCount,
	}
}
