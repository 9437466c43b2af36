// Package redisslot provides a Redis-backed credential.Slot, for clients that
// share one credential across processes or hosts.
package redisslot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis slot
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "authclient:credential:"
	KeyPrefix string
}

// Slot implements credential.Slot using Redis strings
type Slot struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a new Redis-backed slot.
func New(config Config) (*Slot, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "authclient:credential:"
	}
	return &Slot{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

func (s *Slot) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %w", credential.ErrStorage, key, err)
	}
	return val, true, nil
}

func (s *Slot) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", credential.ErrStorage, key, err)
	}
	return nil
}

func (s *Slot) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %w", credential.ErrStorage, key, err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *Slot) Close() error {
	return s.client.Close()
}

// Compile-time interface check
var _ credential.Slot = (*Slot)(nil)
