package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kiosco/backend/internal/domain"
)

const DefaultConfigurationKey = "kiosco:configuration"

type RedisConfigurationCache struct {
	client *redis.Client
	key    string
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisConfigurationCache(client *redis.Client, key string) *RedisConfigurationCache {
	if key == "" {
		key = DefaultConfigurationKey
	}
	return &RedisConfigurationCache{client: client, key: key}
}

func (c *RedisConfigurationCache) Get(ctx context.Context) (*domain.Configuration, bool, error) {
	val, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cfg domain.Configuration
	if err := json.Unmarshal([]byte(val), &cfg); err != nil {
		return nil, false, err
	}
	return &cfg, true, nil
}

func (c *RedisConfigurationCache) Set(ctx context.Context, value *domain.Configuration, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, ttl).Err()
}

func (c *RedisConfigurationCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
