package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"equiprent/internal/config"
	"equiprent/internal/domain"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// RedisActiveSetCache keeps active set snapshots next to a per-equipment generation counter.
type RedisActiveSetCache struct {
	client *redis.Client
}

func NewRedisActiveSetCache(client *redis.Client) *RedisActiveSetCache {
	return &RedisActiveSetCache{client: client}
}

func activeSetKey(equipmentID string) string    { return "active_set:" + equipmentID }
func activeSetGenKey(equipmentID string) string { return "active_set_gen:" + equipmentID }

func (c *RedisActiveSetCache) Generation(ctx context.Context, equipmentID string) (int64, error) {
	if c.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	gen, err := c.client.Get(ctx, activeSetGenKey(equipmentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get active set generation: %w", err)
	}
	return gen, nil
}

func (c *RedisActiveSetCache) Get(ctx context.Context, equipmentID string) (*domain.CachedActiveSet, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := c.client.Get(ctx, activeSetKey(equipmentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active set from redis: %w", err)
	}

	var set domain.CachedActiveSet
	if err := json.Unmarshal(val, &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active set: %w", err)
	}
	return &set, nil
}

func (c *RedisActiveSetCache) Set(ctx context.Context, equipmentID string, set *domain.CachedActiveSet, ttl time.Duration) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal active set: %w", err)
	}
	if err := c.client.Set(ctx, activeSetKey(equipmentID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set active set in redis: %w", err)
	}
	return nil
}

// Invalidate bumps the generation and drops the snapshot in one round trip.
func (c *RedisActiveSetCache) Invalidate(ctx context.Context, equipmentID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, activeSetGenKey(equipmentID))
		pipe.Del(ctx, activeSetKey(equipmentID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate active set: %w", err)
	}
	return nil
}

// RedisIdempotencyStore keeps replayable responses keyed by client supplied tokens.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func idempotencyKey(key string) string { return "idemp:" + key }

const beginAttempts = 3

// Begin claims key with SETNX. If another request owns it, the stored record is returned.
// A key that expires between the claim and the read is claimed again.
func (s *RedisIdempotencyStore) Begin(ctx context.Context, key string, ttl time.Duration) (*StoredResponse, bool, error) {
	pending, err := json.Marshal(StoredResponse{})
	if err != nil {
		return nil, false, err
	}
	for attempt := 0; attempt < beginAttempts; attempt++ {
		ok, err := s.client.SetNX(ctx, idempotencyKey(key), pending, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if ok {
			return nil, true, nil
		}

		val, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			// expired between the two calls
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
		}
		var resp StoredResponse
		if err := json.Unmarshal(val, &resp); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal idempotent response: %w", err)
		}
		return &resp, false, nil
	}
	return nil, false, fmt.Errorf("idempotency key %s kept expiring while being claimed", key)
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	resp.Done = true
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, idempotencyKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotent response: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Abort(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
