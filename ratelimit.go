package goBroker

import (
	"context"
	"sync"
	"time"
)

// rateLimiter is a client-side request budget: at most maxRequests calls per
// window, with the window anchored to the first call after the previous one
// expired. State is recomputed lazily on each acquire; no background timers.
type rateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	failFast    bool

	windowStart time.Time
	count       int
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		maxRequests: cfg.MaxRequests,
		window:      cfg.Window,
		failFast:    cfg.FailFast,
	}
}

// acquire claims one slot, waiting for the current window to expire when the
// budget is spent. FailFast mode returns a rate-limit error carrying the
// remaining delay instead of waiting. ctx cancellation always wins over the
// wait.
func (l *rateLimiter) acquire(ctx context.Context) (waited time.Duration, err error) {
	for {
		l.mu.Lock()
		now := time.Now()

		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
			l.windowStart = now
			l.count = 0
		}

		if l.count < l.maxRequests {
			l.count++
			l.mu.Unlock()
			return waited, nil
		}

		wait := l.window - now.Sub(l.windowStart)
		l.mu.Unlock()

		if l.failFast {
			return waited, &Error{
				Kind:       KindRateLimit,
				RetryAfter: wait,
				Message:    "client-side rate limit reached",
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			waited += wait
		case <-ctx.Done():
			timer.Stop()
			return waited, &Error{
				Kind:    KindTimeout,
				Message: "cancelled while rate limited",
				cause:   ctx.Err(),
			}
		}
	}
}

// remaining reports how many slots are left in the current window. Diagnostic
// only; the answer can be stale by the time the caller acts on it.
func (l *rateLimiter) remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || time.Since(l.windowStart) >= l.window {
		return l.maxRequests
	}
	return l.maxRequests - l.count
}
