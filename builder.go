package goBroker

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/goBroker/internal/events"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goBroker APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	httpClient  *http.Client
	persistence TokenPersistence
	redis       *redis.Client
	eventSink   EventSink
	staticToken string
	hooks       Hooks
	listeners   []TokenListener

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithHTTPClient describes the withhttpclient operation and its observable behavior.
//
// WithHTTPClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithPersistence describes the withpersistence operation and its observable behavior.
//
// WithPersistence does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPersistence(store TokenPersistence) *Builder {
	b.persistence = store
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis wires a Redis-backed token store using Persistence.RedisKey; an
// explicit WithPersistence store takes precedence.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithEventSink describes the witheventsink operation and its observable behavior.
//
// WithEventSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	b.config.Events.Enabled = true
	return b
}

// WithStaticToken describes the withstatictoken operation and its observable behavior.
//
// WithStaticToken disables the refresh lifecycle; the client sends the given
// bearer token on every authenticated request.
func (b *Builder) WithStaticToken(token string) *Builder {
	b.staticToken = token
	return b
}

// WithHooks describes the withhooks operation and its observable behavior.
//
// WithHooks does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithHooks(hooks Hooks) *Builder {
	b.hooks = hooks
	return b
}

// WithTokenListener describes the withtokenlistener operation and its observable behavior.
//
// WithTokenListener registers a callback fired after every successful token
// replacement. May be called multiple times.
func (b *Builder) WithTokenListener(fn TokenListener) *Builder {
	if fn != nil {
		b.listeners = append(b.listeners, fn)
	}
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build wires the token manager, persistence bridge, rate limiter, and the
// middleware pipeline; the builder is single-use.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	metrics := NewMetrics(cfg.Metrics)
	dispatcher := events.NewDispatcher(events.Config{
		Enabled:    cfg.Events.Enabled,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
	}, b.eventSink)

	// -------- PERSISTENCE --------
	store := b.persistence
	if store == nil && b.redis != nil {
		redisStore, err := NewRedisTokenStore(b.redis, cfg.Persistence.RedisKey)
		if err != nil {
			dispatcher.Close()
			return nil, err
		}
		store = redisStore
	}

	if b.staticToken != "" && store != nil {
		dispatcher.Close()
		return nil, errors.New("static token cannot be combined with token persistence")
	}

	bridge := newPersistenceBridge(store, dispatcher, metrics)

	// -------- TOKEN SOURCE --------
	// Refresh calls bypass auth and rate limiting: retry around the raw
	// transport only.
	refreshHandler := compose(
		terminalTransport(httpClient),
		retryMiddleware(cfg.Retry, nil, dispatcher, metrics),
	)
	endpoint := &tokenEndpoint{oauth: cfg.OAuth, token: cfg.Token, handler: refreshHandler}

	var (
		source  TokenSource
		manager *TokenManager
	)
	if b.staticToken != "" {
		source = StaticTokenSource(b.staticToken)
	} else {
		var err error
		manager, err = NewTokenManager(cfg.Token, endpoint.refresh, bridge, dispatcher, metrics, b.listeners)
		if err != nil {
			dispatcher.Close()
			return nil, err
		}
		manager.loadPersisted(context.Background())
		source = manager
	}

	// -------- PIPELINE --------
	limiter := newRateLimiter(cfg.RateLimit)
	pipeline := newPipeline(cfg, source, limiter, b.hooks, dispatcher, metrics, httpClient)

	b.built = true

	return &Client{
		cfg:        cfg,
		oauth:      newOAuth2Config(cfg.OAuth),
		manager:    manager,
		source:     source,
		pipeline:   pipeline,
		limiter:    limiter,
		dispatcher: dispatcher,
		metrics:    metrics,
		httpClient: httpClient,
	}, nil
}
