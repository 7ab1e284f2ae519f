package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const idemNS = "lounge:v1:idem"

const (
	lockPrefix   = "LOCK:"
	resultPrefix = "RES:"
)

// KeyIdempotency namespaces a client key by operator and route so keys never collide across callers.
func KeyIdempotency(operatorID int64, route, key string) string {
	return fmt.Sprintf("%s:%d:%s:%s", idemNS, operatorID, route, key)
}

// IdempotencyRecord is what is stored under a key: either an in-flight lock or a finished response.
type IdempotencyRecord struct {
	Fingerprint string `json:"fingerprint"`
	InProgress  bool   `json:"-"`
	StatusCode  int    `json:"status_code"`
	Body        []byte `json:"body"`
}

type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock claims the key for a request with the given payload fingerprint.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, encodeLock(fingerprint), lockTTL).Result()
}

// Get returns the record under key, or nil when the key is unused.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(v)
}

// SaveResult replaces the lock with the finished response for the configured TTL.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, rec IdempotencyRecord) error {
	v, err := encodeResult(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, v, s.ttl).Err()
}

func encodeLock(fingerprint string) string {
	return lockPrefix + fingerprint
}

func encodeResult(rec IdempotencyRecord) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encoding idempotency record: %w", err)
	}
	return resultPrefix + string(payload), nil
}

// decodeRecord reads a stored value back. Values with an unknown prefix are treated as unused keys.
func decodeRecord(v string) (*IdempotencyRecord, error) {
	switch {
	case strings.HasPrefix(v, lockPrefix):
		return &IdempotencyRecord{Fingerprint: strings.TrimPrefix(v, lockPrefix), InProgress: true}, nil
	case strings.HasPrefix(v, resultPrefix):
		rec := &IdempotencyRecord{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(v, resultPrefix)), rec); err != nil {
			return nil, fmt.Errorf("decoding idempotency record: %w", err)
		}
		return rec, nil
	}
	return nil, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
