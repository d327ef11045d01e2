package goBroker

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/goBroker/internal/events"
)

// TokenSet is the in-memory token triple. It is immutable once created and
// replaced only as a whole value; no code path edits individual fields of a
// stored set.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the absolute instant the access token stops being valid.
	ExpiresAt time.Time
	// IssuedAt is when this access token was obtained.
	IssuedAt time.Time
	// RefreshIssuedAt is when the refresh token was last rotated. It survives
	// refreshes that carry the prior refresh token forward.
	RefreshIssuedAt time.Time
}

// TokenRecord is the persisted form of a [TokenSet]. Instants are epoch
// milliseconds so records survive any JSON-capable backend unchanged.
type TokenRecord struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	ExpiresAt       int64  `json:"expires_at"`
	IssuedAt        int64  `json:"issued_at,omitempty"`
	RefreshIssuedAt int64  `json:"refresh_issued_at,omitempty"`
}

func (t TokenSet) record() TokenRecord {
	rec := TokenRecord{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt.UnixMilli(),
	}
	if !t.IssuedAt.IsZero() {
		rec.IssuedAt = t.IssuedAt.UnixMilli()
	}
	if !t.RefreshIssuedAt.IsZero() {
		rec.RefreshIssuedAt = t.RefreshIssuedAt.UnixMilli()
	}
	return rec
}

func tokenSetFromRecord(rec TokenRecord) TokenSet {
	ts := TokenSet{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    time.UnixMilli(rec.ExpiresAt),
	}
	if rec.IssuedAt > 0 {
		ts.IssuedAt = time.UnixMilli(rec.IssuedAt)
	}
	if rec.RefreshIssuedAt > 0 {
		ts.RefreshIssuedAt = time.UnixMilli(rec.RefreshIssuedAt)
	}
	return ts
}

// TokenInfo is a read-only snapshot of the managed token state, intended for
// CLI diagnostics ("how old is my session").
type TokenInfo struct {
	HasToken        bool
	ExpiresAt       time.Time
	IssuedAt        time.Time
	RefreshIssuedAt time.Time
	// Stale reports whether the access token is past or inside the safety
	// buffer, i.e. the next authenticated call will refresh.
	Stale bool
}

// TokenPersistence is the narrow load/save contract user code implements to
// keep a session across process restarts. Load returns (nil, nil) when no
// record exists yet.
//
// [FileTokenStore] and [RedisTokenStore] are the bundled implementations.
type TokenPersistence interface {
	Load(ctx context.Context) (*TokenRecord, error)
	Save(ctx context.Context, record TokenRecord) error
}

// TokenSource produces a bearer token for one outbound request. The two
// implementations are [StaticTokenSource] and [TokenManager].
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticTokenSource is a fixed bearer token with no refresh lifecycle.
type StaticTokenSource string

// AccessToken returns the static token, or an authorization error when it
// is empty.
func (s StaticTokenSource) AccessToken(context.Context) (string, error) {
	if s == "" {
		return "", &Error{Kind: KindUnauthorized, Message: "empty static token"}
	}
	return string(s), nil
}

// RefreshFunc exchanges a refresh token for a new [TokenSet] at the broker's
// token endpoint. The pipeline's retry executor wraps the call; the token
// manager itself never retries.
type RefreshFunc func(ctx context.Context, refreshToken string) (*TokenSet, error)

// Handler executes one outbound request and returns the raw response or a
// classified [*Error]. The terminal handler is the HTTP transport; every
// middleware wraps a Handler and returns a Handler.
type Handler func(ctx context.Context, req *http.Request) (*http.Response, error)

// Middleware wraps the next Handler. Composition is front-to-back: the first
// middleware sees the request first and the response last.
type Middleware func(next Handler) Handler

// Hooks are user middlewares spliced into the fixed pipeline order:
//
//	Before → auth → PostAuth → rate limit → PostRateLimit → retry → Custom → transport
type Hooks struct {
	Before        []Middleware
	PostAuth      []Middleware
	PostRateLimit []Middleware
	Custom        []Middleware
}

// Event is a fire-and-forget lifecycle notification (refresh outcomes,
// persistence transitions, rate-limit and retry exhaustion).
type Event = events.Event

// EventSink receives [Event] values from the client's dispatcher.
type EventSink = events.Sink

// NoOpSink is an [EventSink] that silently discards all events.
type NoOpSink = events.NoOpSink

// ChannelSink is a buffered channel-based [EventSink].
type ChannelSink = events.ChannelSink

// JSONWriterSink is an [EventSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = events.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return events.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return events.NewJSONWriterSink(w)
}

// Event types emitted by the token manager, persistence bridge, and pipeline.
const (
	EventTokenRefreshed        = "token_refreshed"
	EventRefreshFailed         = "refresh_failed"
	EventTokenLoaded           = "token_loaded"
	EventTokenLoadFailed       = "token_load_failed"
	EventTokenSaved            = "token_saved"
	EventTokenSaveFailed       = "token_save_failed"
	EventTokenValidationFailed = "token_validation_failed"
	EventRateLimited           = "rate_limited"
	EventRetryExhausted        = "retry_exhausted"
	EventRefreshTokenAging     = "refresh_token_aging"
)
