package goBroker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goBroker/internal/events"
	"github.com/google/uuid"
)

// compose wraps terminal with mws front-to-back: mws[0] sees the request
// first and the response last.
func compose(terminal Handler, mws ...Middleware) Handler {
	h := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// prepareMiddleware stamps the request id and default headers before any
// other middleware runs. A caller-supplied id (WithRequestID) wins over the
// generated one.
func prepareMiddleware(userAgent string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *http.Request) (*http.Response, error) {
			requestID := requestIDFromContext(ctx)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			req.Header.Set(headerRequestID, requestID)

			if userAgent != "" && req.Header.Get("User-Agent") == "" {
				req.Header.Set("User-Agent", userAgent)
			}
			return next(ctx, req)
		}
	}
}

// authMiddleware attaches the bearer token. Requests marked with
// WithPublicEndpoint pass through untouched. A token source failure fails
// the request here; nothing downstream runs without credentials.
func authMiddleware(source TokenSource, metrics *Metrics) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *http.Request) (*http.Response, error) {
			if publicEndpointFromContext(ctx) {
				return next(ctx, req)
			}

			token, err := source.AccessToken(ctx)
			if err != nil {
				metrics.Inc(MetricAuthMissingToken)
				var brokerErr *Error
				if errors.As(err, &brokerErr) {
					return nil, brokerErr
				}
				return nil, &Error{
					Kind:      KindUnauthorized,
					RequestID: req.Header.Get(headerRequestID),
					Message:   "no access token available",
					cause:     err,
				}
			}

			req.Header.Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

// rateLimitMiddleware gates requests through the sliding-window limiter.
// Both outcomes (wait and fail-fast rejection) are observable as events.
func rateLimitMiddleware(limiter *rateLimiter, dispatcher *events.Dispatcher, metrics *Metrics) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *http.Request) (*http.Response, error) {
			waited, err := limiter.acquire(ctx)
			requestID := req.Header.Get(headerRequestID)

			if err != nil {
				var brokerErr *Error
				if errors.As(err, &brokerErr) && brokerErr.Kind == KindRateLimit {
					metrics.Inc(MetricRateLimitRejected)
					dispatcher.Emit(ctx, events.Event{
						Timestamp: time.Now(),
						EventType: EventRateLimited,
						RequestID: requestID,
						Success:   false,
						Error:     brokerErr.Error(),
					})
					brokerErr.RequestID = requestID
				}
				return nil, err
			}

			if waited > 0 {
				metrics.Inc(MetricRateLimitWait)
				dispatcher.Emit(ctx, events.Event{
					Timestamp: time.Now(),
					EventType: EventRateLimited,
					RequestID: requestID,
					Success:   true,
					Metadata: map[string]string{
						"waited": waited.Truncate(time.Millisecond).String(),
					},
				})
			}
			return next(ctx, req)
		}
	}
}

// terminalTransport is the end of the chain: one HTTP round trip. Transport
// failures are classified; response statuses are left for the retry
// middleware to judge.
func terminalTransport(client *http.Client) Handler {
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, classifyTransportError(err, req.Header.Get(headerRequestID))
		}
		return resp, nil
	}
}

// newPipeline assembles the fixed chain:
//
//	prepare → Before → auth → PostAuth → rate limit → PostRateLimit → retry → Custom → transport
func newPipeline(cfg Config, source TokenSource, limiter *rateLimiter, hooks Hooks, dispatcher *events.Dispatcher, metrics *Metrics, httpClient *http.Client) Handler {
	mws := make([]Middleware, 0, 6+len(hooks.Before)+len(hooks.PostAuth)+len(hooks.PostRateLimit)+len(hooks.Custom))
	mws = append(mws, prepareMiddleware(cfg.HTTP.UserAgent))
	mws = append(mws, hooks.Before...)
	mws = append(mws, authMiddleware(source, metrics))
	mws = append(mws, hooks.PostAuth...)
	mws = append(mws, rateLimitMiddleware(limiter, dispatcher, metrics))
	mws = append(mws, hooks.PostRateLimit...)
	mws = append(mws, retryMiddleware(cfg.Retry, source, dispatcher, metrics))
	mws = append(mws, hooks.Custom...)
	return compose(terminalTransport(httpClient), mws...)
}
