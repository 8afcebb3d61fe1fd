package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationList keeps revoked token IDs in a Redis set.
type RedisRevocationList struct {
	client redis.UniversalClient
	key    string
}

// NewRedisRevocationList creates a list stored under key.
func NewRedisRevocationList(client redis.UniversalClient, key string) *RedisRevocationList {
	return &RedisRevocationList{client: client, key: key}
}

// IsRevoked implements RevocationChecker.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := l.client.SIsMember(ctx, l.key, tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember %s: %w", l.key, err)
	}
	return revoked, nil
}

// Revoke adds tokenID to the list.
func (l *RedisRevocationList) Revoke(ctx context.Context, tokenID string) error {
	if err := l.client.SAdd(ctx, l.key, tokenID).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", l.key, err)
	}
	return nil
}

// Ping checks the connection, bounded by timeout.
func (l *RedisRevocationList) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return l.client.Ping(ctx).Err()
}
