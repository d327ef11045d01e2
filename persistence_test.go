package goBroker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goBroker/internal/events"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestValidateRecord(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name   string
		rec    TokenRecord
		reject bool
	}{
		{
			name:   "valid",
			rec:    TokenRecord{AccessToken: "tok", RefreshToken: "ref", ExpiresAt: now.Add(time.Hour).UnixMilli()},
			reject: false,
		},
		{
			name:   "expired within recovery window",
			rec:    TokenRecord{AccessToken: "tok", RefreshToken: "ref", ExpiresAt: now.Add(-time.Hour).UnixMilli()},
			reject: false,
		},
		{
			name:   "empty access token",
			rec:    TokenRecord{RefreshToken: "ref", ExpiresAt: now.Add(time.Hour).UnixMilli()},
			reject: true,
		},
		{
			name:   "missing expiry",
			rec:    TokenRecord{AccessToken: "tok", RefreshToken: "ref"},
			reject: true,
		},
		{
			name:   "expired beyond recovery",
			rec:    TokenRecord{AccessToken: "tok", RefreshToken: "ref", ExpiresAt: now.Add(-25 * time.Hour).UnixMilli()},
			reject: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason := validateRecord(tc.rec, now)
			if tc.reject && reason == "" {
				t.Fatal("expected rejection")
			}
			if !tc.reject && reason != "" {
				t.Fatalf("unexpected rejection: %s", reason)
			}
		})
	}
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "token.json")
	store, err := NewFileTokenStore(path)
	if err != nil {
		t.Fatalf("NewFileTokenStore failed: %v", err)
	}

	if rec, err := store.Load(context.Background()); err != nil || rec != nil {
		t.Fatalf("expected no record on first load, got %v / %v", rec, err)
	}

	want := TokenRecord{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	}
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 perms, got %o", perm)
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFileTokenStoreRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	store, err := NewFileTokenStore(path)
	if err != nil {
		t.Fatalf("NewFileTokenStore failed: %v", err)
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisTokenStoreRoundTrip(t *testing.T) {
	store, err := NewRedisTokenStore(newTestRedis(t), "gobroker:test:token")
	if err != nil {
		t.Fatalf("NewRedisTokenStore failed: %v", err)
	}

	if rec, err := store.Load(context.Background()); err != nil || rec != nil {
		t.Fatalf("expected no record on first load, got %v / %v", rec, err)
	}

	want := TokenRecord{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	}
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRedisTokenStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewRedisTokenStore(client, "gobroker:test:token")
	if err != nil {
		t.Fatalf("NewRedisTokenStore failed: %v", err)
	}
	mr.Close()

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context) (*TokenRecord, error) {
	return nil, errors.New("backend down")
}

func (failingStore) Save(context.Context, TokenRecord) error {
	return errors.New("backend down")
}

func collectEvents(t *testing.T, sink *ChannelSink, d *events.Dispatcher) map[string]int {
	t.Helper()
	d.Close()

	got := map[string]int{}
	for {
		select {
		case e := <-sink.Events():
			got[e.EventType]++
		default:
			return got
		}
	}
}

func TestBridgeEmitsPersistenceEvents(t *testing.T) {
	sink := NewChannelSink(16)
	dispatcher := events.NewDispatcher(events.Config{Enabled: true, BufferSize: 16, DropIfFull: false}, sink)
	bridge := newPersistenceBridge(failingStore{}, dispatcher, nil)

	if _, err := bridge.load(context.Background()); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
	bridge.save(context.Background(), TokenSet{AccessToken: "tok"})

	got := collectEvents(t, sink, dispatcher)
	if got[EventTokenLoadFailed] != 1 {
		t.Fatalf("expected one load-failed event, got %d", got[EventTokenLoadFailed])
	}
	if got[EventTokenSaveFailed] != 1 {
		t.Fatalf("expected one save-failed event, got %d", got[EventTokenSaveFailed])
	}
}

func TestBridgeValidationFailureIsNoRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewFileTokenStore(path)
	if err != nil {
		t.Fatalf("NewFileTokenStore failed: %v", err)
	}
	if err := store.Save(context.Background(), TokenRecord{RefreshToken: "ref", ExpiresAt: 1}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sink := NewChannelSink(16)
	dispatcher := events.NewDispatcher(events.Config{Enabled: true, BufferSize: 16, DropIfFull: false}, sink)
	bridge := newPersistenceBridge(store, dispatcher, nil)

	ts, err := bridge.load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if ts != nil {
		t.Fatal("corrupt record must load as no record")
	}

	got := collectEvents(t, sink, dispatcher)
	if got[EventTokenValidationFailed] != 1 {
		t.Fatalf("expected one validation-failed event, got %d", got[EventTokenValidationFailed])
	}
}

func TestBridgeLoadWrapsUnavailableOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewRedisTokenStore(client, "gobroker:test:token")
	if err != nil {
		t.Fatalf("NewRedisTokenStore failed: %v", err)
	}
	mr.Close()

	bridge := newPersistenceBridge(store, nil, nil)
	_, err = bridge.load(context.Background())
	if !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
	if got := strings.Count(err.Error(), ErrPersistenceUnavailable.Error()); got != 1 {
		t.Fatalf("expected a single unavailable wrap, found %d in %q", got, err)
	}
}

func TestManagerLoadsPersistedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewFileTokenStore(path)
	if err != nil {
		t.Fatalf("NewFileTokenStore failed: %v", err)
	}
	rec := TokenRecord{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	bridge := newPersistenceBridge(store, nil, nil)
	m, err := NewTokenManager(testTokenConfig(), func(context.Context, string) (*TokenSet, error) {
		return nil, errors.New("unused")
	}, bridge, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	m.loadPersisted(context.Background())

	tok, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if tok != "tok-1" {
		t.Fatalf("expected persisted token, got %q", tok)
	}
}

func TestManagerLoadWarnsOnAgedRefreshToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewFileTokenStore(path)
	if err != nil {
		t.Fatalf("NewFileTokenStore failed: %v", err)
	}
	rec := TokenRecord{
		AccessToken:     "tok-1",
		RefreshToken:    "ref-old",
		ExpiresAt:       time.Now().Add(time.Hour).UnixMilli(),
		RefreshIssuedAt: time.Now().Add(-90 * 24 * time.Hour).UnixMilli(),
	}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sink := NewChannelSink(16)
	dispatcher := events.NewDispatcher(events.Config{Enabled: true, BufferSize: 16, DropIfFull: false}, sink)
	bridge := newPersistenceBridge(store, dispatcher, nil)

	cfg := testTokenConfig()
	cfg.RefreshWarnAge = 60 * 24 * time.Hour
	m, err := NewTokenManager(cfg, func(context.Context, string) (*TokenSet, error) {
		return nil, errors.New("unused")
	}, bridge, dispatcher, nil, nil)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	m.loadPersisted(context.Background())

	got := collectEvents(t, sink, dispatcher)
	if got[EventRefreshTokenAging] != 1 {
		t.Fatalf("expected one aging event on load, got %d", got[EventRefreshTokenAging])
	}
}

func TestRefreshPersistsNewToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewFileTokenStore(path)
	if err != nil {
		t.Fatalf("NewFileTokenStore failed: %v", err)
	}

	bridge := newPersistenceBridge(store, nil, nil)
	m, err := NewTokenManager(testTokenConfig(), func(context.Context, string) (*TokenSet, error) {
		return &TokenSet{
			AccessToken:  "tok-2",
			RefreshToken: "ref-2",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}, bridge, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	seedToken(m, "tok-1", "ref-1", time.Now().Add(-time.Minute))

	if _, err := m.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}

	rec, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec == nil || rec.AccessToken != "tok-2" || rec.RefreshToken != "ref-2" {
		t.Fatalf("expected persisted refreshed token, got %+v", rec)
	}
}
