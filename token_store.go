package goBroker

import (
	"sync/atomic"
	"time"
)

// tokenStore holds the current TokenSet. The set is replaced as a whole
// value; readers never observe a partially updated triple. Only the token
// manager writes here.
type tokenStore struct {
	current atomic.Pointer[TokenSet]
}

func newTokenStore() *tokenStore {
	return &tokenStore{}
}

// get returns the current set, or nil when no token has been adopted yet.
func (s *tokenStore) get() *TokenSet {
	return s.current.Load()
}

// replace installs a new set in one atomic assignment.
func (s *tokenStore) replace(ts *TokenSet) {
	s.current.Store(ts)
}

// fresh reports whether the stored access token is usable at now, leaving
// the safety buffer before the real expiry.
func (ts *TokenSet) fresh(now time.Time, buffer time.Duration) bool {
	if ts == nil || ts.AccessToken == "" {
		return false
	}
	return now.Before(ts.ExpiresAt.Add(-buffer))
}
