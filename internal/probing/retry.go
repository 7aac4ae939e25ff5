package probing

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// BackoffPolicy decides whether a probe attempt is worth repeating and how
// long to sleep before the next try. Delays grow exponentially from the base,
// capped at the maximum, with +/-30% jitter so retries do not align.
type BackoffPolicy struct {
	maxRetries   int
	base         time.Duration
	max          time.Duration
	jitterFactor float64
	logger       *logrus.Logger
}

func NewBackoffPolicy(maxRetries int, base, max time.Duration, logger *logrus.Logger) *BackoffPolicy {
	if logger == nil {
		logger = logrus.New()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = base * 10
	}
	return &BackoffPolicy{
		maxRetries:   maxRetries,
		base:         base,
		max:          max,
		jitterFactor: 0.3,
		logger:       logger,
	}
}

func (b *BackoffPolicy) MaxRetries() int { return b.maxRetries }

// Retryable reports whether an attempt outcome qualifies for another try:
// transport-level failures, timeouts, 5xx responses, and 429 throttling.
// A zero status code means the request never produced a response.
func (b *BackoffPolicy) Retryable(statusCode int, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		return true
	}
	if statusCode >= 500 {
		return true
	}
	return statusCode == http.StatusTooManyRequests
}

// Delay computes the pause before attempt n (1-based retry counter).
func (b *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := b.base * time.Duration(1<<(attempt-1))
	if backoff > b.max {
		backoff = b.max
	}
	scale := 1 + b.jitterFactor*(2*rand.Float64()-1)
	return time.Duration(float64(backoff) * scale)
}

// Wait sleeps the backoff for the given retry attempt, aborting early when
// the context ends.
func (b *BackoffPolicy) Wait(ctx context.Context, attempt int) error {
	delay := b.Delay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTimeout distinguishes deadline failures from other transport errors.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
