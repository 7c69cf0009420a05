package adapter

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"go-relay/internal/infrastructure/presence/port"
)

const keyPrefix = "relay:presence:"

// RedisPresence satisfies port.Store using Redis string keys with TTLs.
type RedisPresence struct {
	client *redis.Client
}

// NewRedisPresence constructs a RedisPresence from a redis URL and verifies
// connectivity with a ping.
func NewRedisPresence(url string) (*RedisPresence, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisPresence{client: c}, nil
}

// Ensure interface compliance at compile time
var _ port.Store = (*RedisPresence)(nil)

func (p *RedisPresence) MarkOnline(ctx context.Context, principalID string, ttl time.Duration) error {
	return p.client.Set(ctx, keyPrefix+principalID, "1", ttl).Err()
}

func (p *RedisPresence) Refresh(ctx context.Context, principalID string, ttl time.Duration) error {
	// SET rather than EXPIRE so a mark that lapsed between pongs comes back.
	return p.client.Set(ctx, keyPrefix+principalID, "1", ttl).Err()
}

func (p *RedisPresence) MarkOffline(ctx context.Context, principalID string) error {
	return p.client.Del(ctx, keyPrefix+principalID).Err()
}

func (p *RedisPresence) IsOnline(ctx context.Context, principalID string) (bool, error) {
	n, err := p.client.Exists(ctx, keyPrefix+principalID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *RedisPresence) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}
