package goBroker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/MrEthical07/goBroker/internal/events"
)

// retryPolicy computes backoff delays: exponential doubling from BaseDelay,
// capped at MaxDelay, plus up to one extra delay of jitter. A server hint
// (Retry-After or a rate-limit reset) overrides the computed schedule.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      bool
}

func newRetryPolicy(cfg RetryConfig) retryPolicy {
	return retryPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		jitter:      cfg.Jitter,
	}
}

// delay returns the wait before the attempt following failedAttempt.
func (p retryPolicy) delay(failedAttempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}

	shift := failedAttempt - 1
	d := p.maxDelay
	if shift < 30 {
		d = p.baseDelay << shift
		if d > p.maxDelay || d <= 0 {
			d = p.maxDelay
		}
	}
	if p.jitter {
		d += rand.N(d)
	}
	return d
}

// retryMiddleware re-executes the downstream handler on retryable failures.
// It owns response classification: a status >= 400 becomes a classified
// error here, with the body drained so the connection can be reused. Before
// each re-attempt the Authorization header is re-resolved from source, so a
// token that expired mid-backoff is refreshed rather than replayed.
func retryMiddleware(cfg RetryConfig, source TokenSource, dispatcher *events.Dispatcher, metrics *Metrics) Middleware {
	policy := newRetryPolicy(cfg)

	return func(next Handler) Handler {
		return func(ctx context.Context, req *http.Request) (*http.Response, error) {
			requestID := req.Header.Get(headerRequestID)
			var last *Error

			for attempt := 1; attempt <= policy.maxAttempts; attempt++ {
				if attempt > 1 {
					metrics.Inc(MetricRetryAttempt)
					if err := reauthorize(ctx, req, source); err != nil {
						return nil, err
					}
					if err := rewindBody(req); err != nil {
						return nil, &Error{
							Kind:      KindInvalidRequest,
							RequestID: requestID,
							Message:   "request body replay failed",
							cause:     err,
						}
					}
				}

				resp, err := next(ctx, req)
				switch {
				case err != nil:
					var brokerErr *Error
					if !errors.As(err, &brokerErr) {
						brokerErr = classifyTransportError(err, requestID)
					}
					last = brokerErr
				case resp.StatusCode >= 400:
					last = classifyResponse(resp, requestID)
				default:
					return resp, nil
				}

				if !last.Retryable() || attempt == policy.maxAttempts {
					break
				}
				if req.Body != nil && req.GetBody == nil {
					// Consumed body with no replay source; retrying would
					// send an empty request.
					return nil, last
				}

				wait := policy.delay(attempt, last.RetryAfter)
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return nil, &Error{
						Kind:      KindTimeout,
						RequestID: requestID,
						Message:   "cancelled during retry backoff",
						cause:     ctx.Err(),
					}
				}
			}

			if last.Retryable() {
				metrics.Inc(MetricRetryExhausted)
				dispatcher.Emit(ctx, events.Event{
					Timestamp: time.Now(),
					EventType: EventRetryExhausted,
					RequestID: requestID,
					Success:   false,
					Error:     last.Error(),
				})
			}
			return nil, last
		}
	}
}

// reauthorize refreshes the bearer header for a re-attempt. Public requests
// and tokenless pipelines are left untouched.
func reauthorize(ctx context.Context, req *http.Request, source TokenSource) error {
	if source == nil || publicEndpointFromContext(ctx) {
		return nil
	}
	if req.Header.Get("Authorization") == "" {
		return nil
	}

	token, err := source.AccessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}
