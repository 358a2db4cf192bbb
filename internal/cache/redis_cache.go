package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"restopos/internal/domain"
)

const menuKeySuffix = "menu:v1"

type RedisMenuCache struct {
	client *redis.Client
	key    string
}

// NewRedisMenuCache scopes its key by namespace so test and live data
// sharing one Redis do not collide.
func NewRedisMenuCache(addr string, password string, db int, namespace string) *RedisMenuCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisMenuCache(client, namespace)
}

func newRedisMenuCache(client *redis.Client, namespace string) *RedisMenuCache {
	key := "restopos:" + menuKeySuffix
	if namespace != "" {
		key = "restopos:" + namespace + ":" + menuKeySuffix
	}
	return &RedisMenuCache{client: client, key: key}
}

func (c *RedisMenuCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisMenuCache) Close() error {
	return c.client.Close()
}

func (c *RedisMenuCache) GetMenu(ctx context.Context) ([]domain.MenuItem, bool, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var items []domain.MenuItem
	if err := json.Unmarshal(val, &items); err != nil {
		return nil, false, err
	}
	return items, true, nil
}

func (c *RedisMenuCache) SetMenu(ctx context.Context, items []domain.MenuItem, ttl time.Duration) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, ttl).Err()
}

func (c *RedisMenuCache) InvalidateMenu(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
