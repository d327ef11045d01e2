package goBroker

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.OAuth.ClientID = "client-1"
	cfg.OAuth.TokenURL = "https://broker.example.test/oauth/token"
	return cfg
}

func TestDefaultConfigRequiresTokenURL(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without TokenURL")
	}
}

func TestValidConfigPasses(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestConfigValidationBounds(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "malformed token url",
			mutate:  func(c *Config) { c.OAuth.TokenURL = "not a url" },
			wantSub: "TokenURL",
		},
		{
			name:    "malformed auth url",
			mutate:  func(c *Config) { c.OAuth.AuthURL = "::bad" },
			wantSub: "AuthURL",
		},
		{
			name:    "malformed redirect url",
			mutate:  func(c *Config) { c.OAuth.RedirectURL = "::bad" },
			wantSub: "RedirectURL",
		},
		{
			name:    "zero http timeout",
			mutate:  func(c *Config) { c.HTTP.Timeout = 0 },
			wantSub: "Timeout",
		},
		{
			name:    "negative safety buffer",
			mutate:  func(c *Config) { c.Token.SafetyBuffer = -time.Second },
			wantSub: "SafetyBuffer",
		},
		{
			name:    "zero fallback ttl",
			mutate:  func(c *Config) { c.Token.FallbackAccessTTL = 0 },
			wantSub: "FallbackAccessTTL",
		},
		{
			name:    "negative refresh warn age",
			mutate:  func(c *Config) { c.Token.RefreshWarnAge = -time.Hour },
			wantSub: "RefreshWarnAge",
		},
		{
			name:    "zero max requests",
			mutate:  func(c *Config) { c.RateLimit.MaxRequests = 0 },
			wantSub: "MaxRequests",
		},
		{
			name:    "zero rate window",
			mutate:  func(c *Config) { c.RateLimit.Window = 0 },
			wantSub: "Window",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantSub: "MaxAttempts",
		},
		{
			name:    "zero base delay",
			mutate:  func(c *Config) { c.Retry.BaseDelay = 0 },
			wantSub: "BaseDelay",
		},
		{
			name:    "max delay below base delay",
			mutate:  func(c *Config) { c.Retry.BaseDelay = time.Second; c.Retry.MaxDelay = time.Millisecond },
			wantSub: "MaxDelay",
		},
		{
			name:    "empty redis key",
			mutate:  func(c *Config) { c.Persistence.RedisKey = "" },
			wantSub: "RedisKey",
		},
		{
			name:    "events enabled with zero buffer",
			mutate:  func(c *Config) { c.Events.Enabled = true; c.Events.BufferSize = 0 },
			wantSub: "BufferSize",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q missing %q", err.Error(), tc.wantSub)
			}
		})
	}
}

func TestCloneConfigCopiesScopes(t *testing.T) {
	cfg := validTestConfig()
	cfg.OAuth.Scopes = []string{"trading", "marketdata"}

	clone := cloneConfig(cfg)
	clone.OAuth.Scopes[0] = "mutated"

	if cfg.OAuth.Scopes[0] != "trading" {
		t.Fatal("clone must not share the scopes slice")
	}
}

func TestRetryAttemptsOfOneDisablesRetries(t *testing.T) {
	cfg := validTestConfig()
	cfg.Retry.MaxAttempts = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("single attempt must be valid, got: %v", err)
	}
}
