package test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goBroker "github.com/MrEthical07/goBroker"
	"github.com/MrEthical07/goBroker/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeBroker is a minimal brokerage API: an OAuth token endpoint plus one
// bearer-guarded data endpoint.
type fakeBroker struct {
	srv       *httptest.Server
	refreshes atomic.Int64
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		b.refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok-live",
			"refresh_token": "ref-live",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/v1/positions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-live" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"positions": []string{"SPY", "QQQ"}})
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func buildClient(t *testing.T, broker *fakeBroker, rdb *redis.Client) *goBroker.Client {
	t.Helper()

	cfg := goBroker.DefaultConfig()
	cfg.OAuth.ClientID = "client-1"
	cfg.OAuth.TokenURL = broker.srv.URL + "/oauth/token"
	cfg.Retry.BaseDelay = 5 * time.Millisecond
	cfg.Retry.MaxDelay = 20 * time.Millisecond
	cfg.Retry.Jitter = false
	cfg.Metrics.Enabled = true

	client, err := goBroker.New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestEndToEndStaleTokenRefreshAndRequest(t *testing.T) {
	broker := newFakeBroker(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := buildClient(t, broker, rdb)

	// Seed an already-expired session; the first request must refresh first.
	if err := client.AdoptToken(goBroker.TokenSet{
		AccessToken:  "tok-stale",
		RefreshToken: "ref-seed",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("AdoptToken failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, broker.srv.URL+"/v1/positions", nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if got := broker.refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}

	info := client.TokenInfo()
	if !info.HasToken || info.Stale {
		t.Fatalf("expected fresh token after refresh, got %+v", info)
	}
}

func TestPersistedSessionSurvivesRestart(t *testing.T) {
	broker := newFakeBroker(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	first := buildClient(t, broker, rdb)
	if err := first.AdoptToken(goBroker.TokenSet{
		AccessToken:  "tok-live",
		RefreshToken: "ref-live",
		ExpiresAt:    time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("AdoptToken failed: %v", err)
	}
	first.Close()

	// A new client on the same Redis resumes the session without refreshing.
	second := buildClient(t, broker, rdb)

	req, _ := http.NewRequest(http.MethodGet, broker.srv.URL+"/v1/positions", nil)
	resp, err := second.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := broker.refreshes.Load(); got != 0 {
		t.Fatalf("resumed session must not refresh, got %d refreshes", got)
	}
}

func TestPrometheusExportOverLiveClient(t *testing.T) {
	broker := newFakeBroker(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := buildClient(t, broker, rdb)
	if err := client.AdoptToken(goBroker.TokenSet{
		AccessToken:  "tok-live",
		RefreshToken: "ref-live",
		ExpiresAt:    time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("AdoptToken failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, broker.srv.URL+"/v1/positions", nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	_ = resp.Body.Close()

	out := prometheus.NewPrometheusExporter(client).Render()
	if !strings.Contains(out, "gobroker_request_success_total 1") {
		t.Fatalf("expected request success counter in exposition, got:\n%s", out)
	}
}
