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

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// StoredResponse is a completed response kept for replay under an
// idempotency key.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyRecord is what a key holds: the hash of the request that claimed
// it and, once that request finished, its response.
type IdempotencyRecord struct {
	RequestHash string          `json:"request_hash"`
	Response    *StoredResponse `json:"response,omitempty"`
}

// InProgress reports whether the claiming request has not completed yet.
func (r IdempotencyRecord) InProgress() bool {
	return r.Response == nil
}

// IdempotencyStore claims keys atomically. Reserve returns true when the
// caller now owns key; otherwise it returns the record already held.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, requestHash string) (*IdempotencyRecord, bool, error)
	Complete(ctx context.Context, key string, record IdempotencyRecord) error
	Release(ctx context.Context, key string) error
}

// reserveAttempts bounds the claim/read loop when a held key expires between
// the two calls.
const reserveAttempts = 3

var ErrReserveContention = errors.New("idempotency key kept changing during reserve")

type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(key string) string {
	return "escrow:idempotency:" + key
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, requestHash string) (*IdempotencyRecord, bool, error) {
	raw, err := json.Marshal(IdempotencyRecord{RequestHash: requestHash})
	if err != nil {
		return nil, false, err
	}
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		claimed, err := s.client.SetNX(ctx, idempotencyKey(key), raw, s.ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if claimed {
			return nil, true, nil
		}
		existing, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, false, fmt.Errorf("read idempotency key: %w", err)
		}
		var record IdempotencyRecord
		if err := json.Unmarshal(existing, &record); err != nil {
			return nil, false, fmt.Errorf("decode idempotency record: %w", err)
		}
		return &record, false, nil
	}
	return nil, false, ErrReserveContention
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, record IdempotencyRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyKey(key), raw, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKey(key)).Err()
}
