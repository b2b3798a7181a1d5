package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/hexlane/authgate/ports"
)

// RedisStore is a Redis implementation of the MarkerStore interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis marker store
func NewRedisStore(client *redis.Client) ports.MarkerStore {
	return &RedisStore{
		client: client,
		prefix: "authgate:marker:",
	}
}

func (s *RedisStore) key(addr common.Address) string {
	return s.prefix + addr.Hex()
}

// SetMarker records the logged-in marker for addr with an expiration
func (s *RedisStore) SetMarker(ctx context.Context, addr common.Address, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(addr), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set marker: %w", err)
	}
	return nil
}

// Marker returns the stored marker token for addr, if any
func (s *RedisStore) Marker(ctx context.Context, addr common.Address) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch marker: %w", err)
	}
	return val, true, nil
}

// DeleteMarker removes the logged-in marker for addr
func (s *RedisStore) DeleteMarker(ctx context.Context, addr common.Address) error {
	if err := s.client.Del(ctx, s.key(addr)).Err(); err != nil {
		return fmt.Errorf("failed to delete marker: %w", err)
	}
	return nil
}
