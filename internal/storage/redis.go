package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned when a backend has no client to talk to.
var ErrNotConfigured = errors.New("storage: backend not configured")

// Redis stores JSON payloads in Redis with an optional TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed store. A non-positive ttl keeps keys forever.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{client: client, ttl: ttl}
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context, key string, dst any) (bool, error) {
	if r == nil || r.client == nil {
		return false, ErrNotConfigured
	}
	if key == "" {
		return false, nil
	}
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Save implements Store. Every write refreshes the TTL.
func (r *Redis) Save(ctx context.Context, key string, v any) error {
	if r == nil || r.client == nil {
		return ErrNotConfigured
	}
	if key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return ErrNotConfigured
	}
	if key == "" {
		return nil
	}
	return r.client.Del(ctx, key).Err()
}

// Ping checks connectivity with the configured timeout.
func (r *Redis) Ping(ctx context.Context, timeout time.Duration) error {
	if r == nil || r.client == nil {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
