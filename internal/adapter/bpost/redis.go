package bpost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bpost:geocode:"

// RedisStore is a Store backed by Redis, sharing cached results across
// service replicas. Values are JSON-encoded address lists.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. A non-positive ttl keeps
// entries until Redis evicts them.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]domain.Address, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var addresses []domain.Address
	if err := json.Unmarshal(raw, &addresses); err != nil {
		return nil, false, fmt.Errorf("decode cached addresses: %w", err)
	}
	return addresses, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, addresses []domain.Address) error {
	raw, err := json.Marshal(addresses)
	if err != nil {
		return fmt.Errorf("encode addresses: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable. It backs the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CheckReadiness implements the shared readiness checker.
func (s *RedisStore) CheckReadiness(ctx context.Context) error {
	return s.Ping(ctx)
}
