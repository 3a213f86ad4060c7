package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisProvider backs the cache with a shared Redis instance so multiple
// gateway replicas see the same memoized upstream results.
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider connects to the given address. An empty password and
// database 0 are fine for the internal deployment.
func NewRedisProvider(addr, password string, db int) *RedisProvider {
	return &RedisProvider{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (p *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return p.client.Set(ctx, key, value, ttl).Err()
}

func (p *RedisProvider) Del(ctx context.Context, key string) error {
	return p.client.Del(ctx, key).Err()
}

func (p *RedisProvider) Close(context.Context) error {
	return p.client.Close()
}

// Ping verifies connectivity at startup.
func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
