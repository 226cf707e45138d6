package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCounter keeps per-owner numbers under "<prefix><owner>" and advances
// them with INCR. The first use seeds the key with SETNX from SeedFunc.
type RedisCounter struct {
	client *redis.Client
	prefix string
	seed   SeedFunc
}

func NewRedisCounter(client *redis.Client, prefix string, seed SeedFunc) *RedisCounter {
	if prefix == "" {
		prefix = "postseq:"
	}
	return &RedisCounter{client: client, prefix: prefix, seed: seed}
}

func (c *RedisCounter) Next(ctx context.Context, owner string) (int64, error) {
	key := c.prefix + owner
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("counter exists: %w", err)
	}
	if exists == 0 {
		var start int64
		if c.seed != nil {
			if start, err = c.seed(ctx, owner); err != nil {
				return 0, fmt.Errorf("seed counter: %w", err)
			}
		}
		// loses harmlessly to a concurrent seeder
		if err := c.client.SetNX(ctx, key, start, 0).Err(); err != nil {
			return 0, fmt.Errorf("seed counter: %w", err)
		}
	}
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}
	return n, nil
}
