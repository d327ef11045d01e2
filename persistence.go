package goBroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MrEthical07/goBroker/internal/events"
	"github.com/redis/go-redis/v9"
)

// staleRecordCutoff is how far past its expiry a persisted record may be and
// still be worth loading; its refresh token may remain valid. Beyond this the
// record counts as corrupt.
const staleRecordCutoff = 24 * time.Hour

// persistenceBridge mediates between the token manager and a user-supplied
// TokenPersistence. All failures are reported through events and metrics;
// none of them stop the token lifecycle.
type persistenceBridge struct {
	store      TokenPersistence
	dispatcher *events.Dispatcher
	metrics    *Metrics
}

func newPersistenceBridge(store TokenPersistence, dispatcher *events.Dispatcher, metrics *Metrics) *persistenceBridge {
	if store == nil {
		return nil
	}
	return &persistenceBridge{store: store, dispatcher: dispatcher, metrics: metrics}
}

// load returns the persisted token set, or nil when none exists or the record
// fails validation. Store errors surface to the caller so a broken backend is
// distinguishable from a clean first run.
func (b *persistenceBridge) load(ctx context.Context) (*TokenSet, error) {
	if b == nil {
		return nil, nil
	}

	rec, err := b.store.Load(ctx)
	if err != nil {
		b.metrics.Inc(MetricTokenLoadFailed)
		b.emit(ctx, EventTokenLoadFailed, false, err.Error())
		if errors.Is(err, ErrPersistenceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if rec == nil {
		return nil, nil
	}

	if reason := validateRecord(*rec, time.Now()); reason != "" {
		b.metrics.Inc(MetricTokenValidationFailed)
		b.emit(ctx, EventTokenValidationFailed, false, reason)
		return nil, nil
	}

	b.metrics.Inc(MetricTokenLoaded)
	b.emit(ctx, EventTokenLoaded, true, "")

	ts := tokenSetFromRecord(*rec)
	return &ts, nil
}

// save persists the token set. Save failures are observable but non-fatal:
// the in-memory set stays authoritative.
func (b *persistenceBridge) save(ctx context.Context, ts TokenSet) {
	if b == nil {
		return
	}

	if err := b.store.Save(ctx, ts.record()); err != nil {
		b.metrics.Inc(MetricTokenSaveFailed)
		b.emit(ctx, EventTokenSaveFailed, false, err.Error())
		logSwallowed("token save failed", err)
		return
	}

	b.metrics.Inc(MetricTokenSaved)
	b.emit(ctx, EventTokenSaved, true, "")
}

func (b *persistenceBridge) emit(ctx context.Context, eventType string, success bool, errMsg string) {
	b.dispatcher.Emit(ctx, events.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Success:   success,
		Error:     errMsg,
	})
}

// validateRecord returns a non-empty reason when the record must be treated
// as absent.
func validateRecord(rec TokenRecord, now time.Time) string {
	if rec.AccessToken == "" {
		return "empty access token"
	}
	if rec.ExpiresAt <= 0 {
		return "missing expiry"
	}
	if now.Sub(time.UnixMilli(rec.ExpiresAt)) > staleRecordCutoff {
		return "record expired beyond recovery"
	}
	return ""
}

/*
====================================
FILE STORE
====================================
*/

// FileTokenStore persists the token record as a JSON file with 0600
// permissions, written via temp-file rename so readers never observe a
// partial record.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a file-backed [TokenPersistence] at path.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if path == "" {
		return nil, errors.New("goBroker: file token store path is required")
	}
	return &FileTokenStore{path: path}, nil
}

// Load reads the token record. A missing file means no record.
func (s *FileTokenStore) Load(_ context.Context) (*TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save writes the record atomically. The parent directory is created with
// 0700 when missing.
func (s *FileTokenStore) Save(_ context.Context, rec TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, s.path)
}

/*
====================================
REDIS STORE
====================================
*/

// RedisTokenStore persists the token record as a JSON value under a single
// key, for deployments where several processes share one session.
type RedisTokenStore struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisTokenStore creates a Redis-backed [TokenPersistence].
func NewRedisTokenStore(redisClient redis.UniversalClient, key string) (*RedisTokenStore, error) {
	if redisClient == nil {
		return nil, errors.New("goBroker: redis client is required")
	}
	if key == "" {
		return nil, errors.New("goBroker: redis key is required")
	}
	return &RedisTokenStore{redis: redisClient, key: key}, nil
}

// Load reads the token record. A missing key means no record.
func (s *RedisTokenStore) Load(ctx context.Context) (*TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save writes the record with no TTL; expiry semantics live in the record
// itself.
func (s *RedisTokenStore) Save(ctx context.Context, rec TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}
