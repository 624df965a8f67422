package session

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "farm:session:"

// RedisStore keeps sessions in Redis so they survive restarts and are shared by replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, id string, ttl time.Duration) error {
	return s.client.Set(ctx, redisKeyPrefix+id, "1", ttl).Err()
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKeyPrefix+id).Err()
}

// Ping checks if Redis is reachable. Used for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client. Call during shutdown.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
