// Package kv provides the redis-backed KV store that backs per-actor state:
// queued notifications, upload-session parts, impact accumulators, and
// short-lived tokens. Keys are namespaced per actor by the callers
// ("user:<id>:...", "upload:<id>:...") so tenants never share a prefix.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a redis client with JSON value marshaling.
type Store struct {
	rdb redis.UniversalClient
}

// NewStore creates a Store from redis connection settings.
func NewStore(cfg Config) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// NewStoreFromClient wraps an existing client (useful for testing with
// miniredis).
func NewStoreFromClient(client redis.UniversalClient) *Store {
	return &Store{rdb: client}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Put stores a JSON-marshaled value. ttl <= 0 means no expiry.
func (s *Store) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, data, max(ttl, 0)).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Get loads and unmarshals a value. Returns (false, nil) when the key does
// not exist.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// GetDel atomically loads and deletes a value. Returns (false, nil) when the
// key does not exist. Used for single-use tokens.
func (s *Store) GetDel(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.rdb.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to getdel %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Delete removes keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// ListKeys returns all keys matching prefix via SCAN (never KEYS — actor
// keyspaces are small but the instance is shared).
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}
	return keys, nil
}

// IncrByFloat atomically adds delta to a float counter and returns the new
// value. Used by the per-campaign impact accumulator.
func (s *Store) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	v, err := s.rdb.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return v, nil
}

// GetFloat reads a float counter; missing keys read as 0.
func (s *Store) GetFloat(ctx context.Context, key string) (float64, error) {
	v, err := s.rdb.Get(ctx, key).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get float %s: %w", key, err)
	}
	return v, nil
}

// SetFloat overwrites a float counter.
func (s *Store) SetFloat(ctx context.Context, key string, value float64) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set float %s: %w", key, err)
	}
	return nil
}
