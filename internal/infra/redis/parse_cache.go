package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ParseCache keeps extracted document/OCR text keyed by content hash so the
// same bytes are not sent to the parsing vendor twice within ttl.
type ParseCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewParseCache(client RedisClient, ttl time.Duration) *ParseCache {
	return &ParseCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ParseCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *ParseCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, key, value, c.ttl)
}

func (c *ParseCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key)
}
