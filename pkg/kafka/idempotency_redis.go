package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore is a Redis-backed IdempotencyStore for multi-instance
// consumer groups. Keys are namespaced per consumer group and expire after
// the configured TTL.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed store. The namespace keeps
// different consumer groups from seeing each other's dedup records.
func NewRedisIdempotencyStore(client *redis.Client, namespace string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		prefix: fmt.Sprintf("idempotency:%s:", namespace),
		ttl:    ttl,
	}
}

// Contains checks whether the event ID has been recorded.
func (s *RedisIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Add records the event ID with the configured TTL. SetNX keeps the original
// expiry when two consumers race on the same event.
func (s *RedisIdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.SetNX(ctx, s.prefix+eventID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}
