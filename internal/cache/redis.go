package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docintake/internal/config"
)

const customerKeyPrefix = "docintake:customer:"

// NewRedis connects to Redis and verifies the connection with a short ping.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// CustomerCache stores customer display names with a fixed TTL.
type CustomerCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewCustomerCache(client redis.Cmdable, ttl time.Duration) *CustomerCache {
	return &CustomerCache{client: client, ttl: ttl}
}

func (c *CustomerCache) Get(ctx context.Context, customerID string) (string, bool, error) {
	name, err := c.client.Get(ctx, customerKey(customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

func (c *CustomerCache) Set(ctx context.Context, customerID, name string) error {
	return c.client.Set(ctx, customerKey(customerID), name, c.ttl).Err()
}

func customerKey(customerID string) string {
	return customerKeyPrefix + customerID
}
