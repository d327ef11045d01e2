package goBroker

import (
	"errors"
	"net/url"
	"time"
)

// Config defines a public type used by goBroker APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	OAuth       OAuthConfig
	HTTP        HTTPConfig
	Token       TokenConfig
	RateLimit   RateLimitConfig
	Retry       RetryConfig
	Persistence PersistenceConfig
	Events      EventsConfig
	Metrics     MetricsConfig
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig defines a public type used by goBroker APIs.
//
// OAuthConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig defines a public type used by goBroker APIs.
//
// HTTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by goBroker APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	// SafetyBuffer is subtracted from the access token expiry when deciding
	// freshness. A token inside the buffer counts as stale.
	SafetyBuffer time.Duration
	// FallbackAccessTTL applies when the token endpoint reports no expiry and
	// the access token carries no readable exp claim.
	FallbackAccessTTL time.Duration
	// RefreshWarnAge is the refresh-token age past which the manager emits a
	// refresh_token_aging event. Zero disables the warning.
	RefreshWarnAge time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by goBroker APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	// FailFast rejects over-limit calls with a rate-limit error instead of
	// suspending the caller until the window expires.
	FailFast bool
}

/*
====================================
RETRY CONFIG
====================================
*/

// RetryConfig defines a public type used by goBroker APIs.
//
// RetryConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

/*
====================================
PERSISTENCE CONFIG
====================================
*/

// PersistenceConfig defines a public type used by goBroker APIs.
//
// PersistenceConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PersistenceConfig struct {
	// RedisKey is the key used by RedisTokenStore when the builder wires a
	// Redis client.
	RedisKey string
}

// EventsConfig defines a public type used by goBroker APIs.
//
// EventsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goBroker APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults. The result still needs the
// OAuth endpoints filled in before it validates.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "goBroker/1.0",
		},
		Token: TokenConfig{
			SafetyBuffer:      60 * time.Second,
			FallbackAccessTTL: 30 * time.Minute,
			RefreshWarnAge:    60 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 120,
			Window:      time.Minute,
			FailFast:    false,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    16 * time.Second,
			Jitter:      true,
		},
		Persistence: PersistenceConfig{
			RedisKey: "gobroker:token",
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if len(cfg.OAuth.Scopes) > 0 {
		out.OAuth.Scopes = make([]string, len(cfg.OAuth.Scopes))
		copy(out.OAuth.Scopes, cfg.OAuth.Scopes)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// OAuth
	if c.OAuth.TokenURL == "" {
		return errors.New("OAuth TokenURL is required")
	}
	if _, err := url.ParseRequestURI(c.OAuth.TokenURL); err != nil {
		return errors.New("OAuth TokenURL must be a valid URL")
	}
	if c.OAuth.AuthURL != "" {
		if _, err := url.ParseRequestURI(c.OAuth.AuthURL); err != nil {
			return errors.New("OAuth AuthURL must be a valid URL")
		}
	}
	if c.OAuth.RedirectURL != "" {
		if _, err := url.ParseRequestURI(c.OAuth.RedirectURL); err != nil {
			return errors.New("OAuth RedirectURL must be a valid URL")
		}
	}

	// HTTP
	if c.HTTP.Timeout <= 0 {
		return errors.New("HTTP Timeout must be > 0")
	}

	// Token
	if c.Token.SafetyBuffer < 0 {
		return errors.New("Token SafetyBuffer must be >= 0")
	}
	if c.Token.FallbackAccessTTL <= 0 {
		return errors.New("Token FallbackAccessTTL must be > 0")
	}
	if c.Token.RefreshWarnAge < 0 {
		return errors.New("Token RefreshWarnAge must be >= 0")
	}

	// Rate limit
	if c.RateLimit.MaxRequests <= 0 {
		return errors.New("RateLimit MaxRequests must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}

	// Retry
	if c.Retry.MaxAttempts < 1 {
		return errors.New("Retry MaxAttempts must be >= 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return errors.New("Retry BaseDelay must be > 0")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("Retry MaxDelay must be >= BaseDelay")
	}

	// Persistence
	if c.Persistence.RedisKey == "" {
		return errors.New("Persistence RedisKey must not be empty")
	}

	// Events
	if c.Events.Enabled {
		if c.Events.BufferSize <= 0 {
			return errors.New("Events BufferSize must be > 0 when events are enabled")
		}
	}

	return nil
}
