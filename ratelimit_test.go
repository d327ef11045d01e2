package goBroker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	l := newRateLimiter(RateLimitConfig{MaxRequests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		waited, err := l.acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		if waited != 0 {
			t.Fatalf("acquire %d should not wait, waited %v", i, waited)
		}
	}
	if got := l.remaining(); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
}

func TestRateLimiterSuspendsOverLimit(t *testing.T) {
	l := newRateLimiter(RateLimitConfig{MaxRequests: 3, Window: 200 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := l.acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}

	waited, err := l.acquire(context.Background())
	if err != nil {
		t.Fatalf("fourth acquire failed: %v", err)
	}
	if waited <= 0 {
		t.Fatal("fourth acquire must report a wait")
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("fourth acquire returned too early: %v", elapsed)
	}
}

func TestRateLimiterFailFast(t *testing.T) {
	l := newRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Minute, FailFast: true})

	if _, err := l.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	_, err := l.acquire(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var brokerErr *Error
	if !errors.As(err, &brokerErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if brokerErr.RetryAfter <= 0 {
		t.Fatal("expected a positive RetryAfter hint")
	}
}

func TestRateLimiterWindowAnchoredToFirstRequest(t *testing.T) {
	l := newRateLimiter(RateLimitConfig{MaxRequests: 2, Window: 50 * time.Millisecond})

	for i := 0; i < 2; i++ {
		if _, err := l.acquire(context.Background()); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
	}

	// Let the window lapse; the next request anchors a new one.
	time.Sleep(70 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := l.acquire(context.Background()); err != nil {
			t.Fatalf("acquire after expiry failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("expected immediate slots in the fresh window, took %v", elapsed)
	}
}

func TestRateLimiterCancelledWait(t *testing.T) {
	l := newRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Minute})

	if _, err := l.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := l.acquire(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("cancelled wait took too long: %v", elapsed)
	}
}
