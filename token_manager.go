package goBroker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goBroker/internal/events"
	"golang.org/x/sync/singleflight"
)

// TokenListener observes successful token replacements. Listeners run
// synchronously after the store update; a panicking or slow listener cannot
// corrupt token state but does delay the refreshing caller.
type TokenListener func(TokenSet)

// TokenManager owns the token lifecycle for one session: freshness checks,
// single-flight refresh, refresh-token carryover, persistence, and listener
// notification. One manager per token set.
type TokenManager struct {
	cfg        TokenConfig
	store      *tokenStore
	bridge     *persistenceBridge
	refresh    RefreshFunc
	dispatcher *events.Dispatcher
	metrics    *Metrics
	listeners  []TokenListener

	flight singleflight.Group
}

// NewTokenManager creates a manager around a refresh function. The bridge,
// dispatcher, and metrics may be nil.
func NewTokenManager(cfg TokenConfig, refresh RefreshFunc, bridge *persistenceBridge, dispatcher *events.Dispatcher, metrics *Metrics, listeners []TokenListener) (*TokenManager, error) {
	if refresh == nil {
		return nil, errors.New("goBroker: refresh function is required")
	}
	return &TokenManager{
		cfg:        cfg,
		store:      newTokenStore(),
		bridge:     bridge,
		refresh:    refresh,
		dispatcher: dispatcher,
		metrics:    metrics,
		listeners:  listeners,
	}, nil
}

// loadPersisted seeds the store from the persistence bridge. Called once
// during Build; a load failure leaves the store empty and surfaces the error
// through events only.
func (m *TokenManager) loadPersisted(ctx context.Context) {
	if m.bridge == nil {
		return
	}
	ts, err := m.bridge.load(ctx)
	if err != nil {
		logSwallowed("token load failed", err)
		return
	}
	if ts != nil {
		m.store.replace(ts)
		m.warnAging(ctx, *ts, time.Now())
	}
}

// AccessToken returns a token valid for at least the safety buffer,
// refreshing first when the stored one is stale. Concurrent callers share a
// single refresh; per-caller cancellation abandons the wait without
// cancelling the shared flight.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	if ts := m.store.get(); ts.fresh(time.Now(), m.cfg.SafetyBuffer) {
		return ts.AccessToken, nil
	}

	ts, err := m.refreshShared(ctx, false)
	if err != nil {
		return "", err
	}
	return ts.AccessToken, nil
}

// ForceRefresh refreshes regardless of freshness. Callers racing an
// in-flight refresh join it rather than queueing a second one.
func (m *TokenManager) ForceRefresh(ctx context.Context) error {
	_, err := m.refreshShared(ctx, true)
	return err
}

// Adopt installs a token set obtained outside the refresh cycle (initial
// code exchange). Missing instants default to now.
func (m *TokenManager) Adopt(ctx context.Context, ts TokenSet) error {
	if ts.AccessToken == "" {
		return &Error{Kind: KindUnauthorized, Message: "adopted token set has no access token", cause: ErrNoToken}
	}

	now := time.Now()
	if ts.IssuedAt.IsZero() {
		ts.IssuedAt = now
	}
	if ts.RefreshIssuedAt.IsZero() && ts.RefreshToken != "" {
		ts.RefreshIssuedAt = now
	}
	if ts.ExpiresAt.IsZero() {
		ts.ExpiresAt = now.Add(m.cfg.FallbackAccessTTL)
	}

	m.store.replace(&ts)
	if m.bridge != nil {
		m.bridge.save(ctx, ts)
	}
	m.notify(ts)
	m.warnAging(ctx, ts, now)
	return nil
}

// TokenInfo reports the current token state without touching the network.
func (m *TokenManager) TokenInfo() TokenInfo {
	ts := m.store.get()
	if ts == nil {
		return TokenInfo{}
	}
	return TokenInfo{
		HasToken:        true,
		ExpiresAt:       ts.ExpiresAt,
		IssuedAt:        ts.IssuedAt,
		RefreshIssuedAt: ts.RefreshIssuedAt,
		Stale:           !ts.fresh(time.Now(), m.cfg.SafetyBuffer),
	}
}

func (m *TokenManager) refreshShared(ctx context.Context, force bool) (*TokenSet, error) {
	// The flight runs on a detached context: one caller's cancellation must
	// not fail the refresh for everyone sharing it.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan("refresh", func() (any, error) {
		return m.doRefresh(flightCtx, force)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.metrics.Inc(MetricRefreshShared)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TokenSet), nil
	case <-ctx.Done():
		return nil, &Error{Kind: KindTimeout, Message: "refresh wait cancelled", cause: ctx.Err()}
	}
}

func (m *TokenManager) doRefresh(ctx context.Context, force bool) (*TokenSet, error) {
	now := time.Now()

	// A caller that queued behind a completed refresh gets the new token
	// without another round trip.
	cur := m.store.get()
	if !force && cur.fresh(now, m.cfg.SafetyBuffer) {
		return cur, nil
	}

	if cur == nil || cur.RefreshToken == "" {
		return nil, &Error{Kind: KindUnauthorized, Message: "no refresh token available", cause: ErrNoToken}
	}

	start := time.Now()
	next, err := m.refresh(ctx, cur.RefreshToken)
	m.metrics.Observe(MetricRefreshLatency, time.Since(start))
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			m.metrics.Inc(MetricRefreshTerminal)
		} else {
			m.metrics.Inc(MetricRefreshFailure)
		}
		m.emit(ctx, EventRefreshFailed, false, err.Error())
		return nil, err
	}
	if next == nil || next.AccessToken == "" {
		err := &Error{Kind: KindServerInternal, Message: "token endpoint returned no access token"}
		m.metrics.Inc(MetricRefreshFailure)
		m.emit(ctx, EventRefreshFailed, false, err.Error())
		return nil, err
	}

	now = time.Now()
	if next.IssuedAt.IsZero() {
		next.IssuedAt = now
	}
	if next.ExpiresAt.IsZero() {
		next.ExpiresAt = now.Add(m.cfg.FallbackAccessTTL)
	}
	if next.RefreshToken == "" {
		// Server kept the old refresh token; carry it and its age forward.
		next.RefreshToken = cur.RefreshToken
		next.RefreshIssuedAt = cur.RefreshIssuedAt
	} else if next.RefreshIssuedAt.IsZero() {
		next.RefreshIssuedAt = now
	}

	m.store.replace(next)
	if m.bridge != nil {
		m.bridge.save(ctx, *next)
	}
	m.notify(*next)

	m.metrics.Inc(MetricRefreshSuccess)
	m.emit(ctx, EventTokenRefreshed, true, "")
	m.warnAging(ctx, *next, now)

	return next, nil
}

func (m *TokenManager) warnAging(ctx context.Context, ts TokenSet, now time.Time) {
	if m.cfg.RefreshWarnAge <= 0 || ts.RefreshIssuedAt.IsZero() {
		return
	}
	age := now.Sub(ts.RefreshIssuedAt)
	if age <= m.cfg.RefreshWarnAge {
		return
	}
	m.dispatcher.Emit(ctx, events.Event{
		Timestamp: now,
		EventType: EventRefreshTokenAging,
		Success:   true,
		Metadata: map[string]string{
			"refresh_token_age": age.Truncate(time.Second).String(),
		},
	})
}

func (m *TokenManager) notify(ts TokenSet) {
	for _, fn := range m.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logSwallowed("token listener panic", fmt.Errorf("%v", r))
				}
			}()
			fn(ts)
		}()
	}
}

func (m *TokenManager) emit(ctx context.Context, eventType string, success bool, errMsg string) {
	m.dispatcher.Emit(ctx, events.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Success:   success,
		Error:     errMsg,
	})
}
