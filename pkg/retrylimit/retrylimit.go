// Package retrylimit provides an adaptive rate limiter plus bounded
// retry with exponential backoff, for clients of flaky upstreams.
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20)
//	err := retrylimit.WithRetry(ctx, lim, 3, func() error {
//	    return doSomeWork()
//	})
package retrylimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter manages a request rate that adjusts itself: it creeps
// up after sustained success and halves on failure. Safe for concurrent
// use.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	lastError time.Time
}

// NewAdaptiveLimiter creates a limiter starting at initial requests per
// second, bounded to [floor, ceil].
func NewAdaptiveLimiter(initial, floor, ceil rate.Limit) *AdaptiveLimiter {
	if initial < floor {
		initial = floor
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, int(max(1, initial))),
		minLimit: floor,
		maxLimit: ceil,
	}
}

// Wait blocks until a token is available or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success nudges the rate up, once failures are at least 10s in the past.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > 10*time.Second {
		a.setLimit(a.limiter.Limit() + 1)
	}
}

// Failure halves the rate.
func (a *AdaptiveLimiter) Failure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.setLimit(a.limiter.Limit() / 2)
}

// Limit returns the current requests per second.
func (a *AdaptiveLimiter) Limit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) setLimit(l rate.Limit) {
	if l > a.maxLimit {
		l = a.maxLimit
	}
	if l < a.minLimit {
		l = a.minLimit
	}
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(int(max(1, l)))
	}
}

// WithRetry runs fn up to maxAttempts times with exponential backoff
// and jitter, waiting on lim (which may be nil) before each attempt.
// Stops early when fn succeeds or ctx is cancelled.
func WithRetry(ctx context.Context, lim *AdaptiveLimiter, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := 500 * time.Millisecond
	const maxDelay = 10 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			if lim != nil {
				lim.Success()
			}
			return nil
		}
		if lim != nil {
			lim.Failure()
		}
		if attempt == maxAttempts {
			break
		}

		log.Debug().Err(lastErr).Int("attempt", attempt).Dur("sleep", delay).
			Msg("request failed, retrying")

		jittered := delay + time.Duration(rand.Int63n(int64(delay/4)+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	return fmt.Errorf("max attempts (%d) exceeded: %w", maxAttempts, lastErr)
}
