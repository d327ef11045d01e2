package goBroker

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/goBroker/internal/events"
	"golang.org/x/oauth2"
)

// Client defines a public type used by goBroker APIs.
//
// Client is the composed request pipeline plus the token lifecycle behind
// it. Construct one via [Builder.Build]; a Client is safe for concurrent use.
type Client struct {
	cfg        Config
	oauth      *oauth2.Config
	manager    *TokenManager
	source     TokenSource
	pipeline   Handler
	limiter    *rateLimiter
	dispatcher *events.Dispatcher
	metrics    *Metrics
	httpClient *http.Client
}

// Do sends req through the middleware pipeline. The caller builds the
// request (method, URL, body); the pipeline owns auth, rate limiting, retry,
// and classification. On failure the returned error is always a [*Error] and
// the response is nil with its body consumed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c == nil || c.pipeline == nil {
		return nil, ErrClientNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	resp, err := c.pipeline(ctx, req)
	c.metrics.Observe(MetricRequestLatency, time.Since(start))

	if err != nil {
		c.metrics.Inc(MetricRequestFailure)
		return nil, err
	}
	c.metrics.Inc(MetricRequestSuccess)
	return resp, nil
}

// AdoptToken installs a token set obtained outside the refresh cycle, such
// as an initial login performed by the application itself.
func (c *Client) AdoptToken(ts TokenSet) error {
	if c.manager == nil {
		return ErrClientNotReady
	}
	return c.manager.Adopt(context.Background(), ts)
}

// ForceRefresh refreshes the managed token immediately.
func (c *Client) ForceRefresh(ctx context.Context) error {
	if c.manager == nil {
		return ErrClientNotReady
	}
	return c.manager.ForceRefresh(ctx)
}

// TokenInfo reports the current token state. A static-token client always
// reports a present, non-stale token.
func (c *Client) TokenInfo() TokenInfo {
	if c.manager == nil {
		return TokenInfo{HasToken: true}
	}
	return c.manager.TokenInfo()
}

// RateLimitRemaining reports how many request slots remain in the current
// window. Diagnostic only.
func (c *Client) RateLimitRemaining() int {
	return c.limiter.remaining()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// EventsDropped reports how many lifecycle events the dispatcher discarded.
func (c *Client) EventsDropped() uint64 {
	return c.dispatcher.Dropped()
}

// Close drains and stops the event dispatcher. The client must not be used
// after Close.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.dispatcher.Close()
}
