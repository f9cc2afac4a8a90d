package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/kevinaaaquil/grimoire/store"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
	defaultMaxDelay     = time.Second
)

// RetryPolicy configures the optimistic-concurrency retry loop used for rating writes.
// Schedule with defaults: 0, 10, 20, 40, 80, 160 ms plus up to 30% jitter.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	JitterFactor float64
	MaxDelay     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.JitterFactor <= 0 || p.JitterFactor > 1 {
		p.JitterFactor = defaultJitterFactor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	return p
}

// retryOnConflict runs fn until it succeeds, fails with an error other than store.ErrVersionConflict,
// the attempts run out, or ctx is done. onRetry is called before each repeated attempt.
func retryOnConflict(ctx context.Context, policy RetryPolicy, onRetry func(attempt int), fn func(ctx context.Context) error) error {
	policy = policy.withDefaults()
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt)
			}
			delay := policy.MaxDelay
			if shift := attempt - 1; shift < 30 {
				delay = min(policy.BaseDelay*time.Duration(1<<shift), policy.MaxDelay)
			}
			jitter := rand.Float64() * float64(delay) * policy.JitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, store.ErrVersionConflict) {
			return lastErr
		}
	}
	return lastErr
}
