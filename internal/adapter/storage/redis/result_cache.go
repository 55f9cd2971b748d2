package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ResultCache implements ports.ResultCache using Redis. It holds serialized
// terminal transaction results keyed by reference, so retries of an already
// settled operation skip the database. The ledger stays the source of truth;
// a cache miss just falls through to a reference lookup.
type ResultCache struct {
	client *goredis.Client
	prefix string
}

// NewResultCache creates a new Redis-backed result cache.
func NewResultCache(client *goredis.Client) *ResultCache {
	return &ResultCache{
		client: client,
		prefix: "result:",
	}
}

// Get retrieves a cached result by reference.
// Returns nil, nil if the reference has no cached result.
func (c *ResultCache) Get(ctx context.Context, reference string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+reference).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis result get: %w", err)
	}
	return val, nil
}

// Set stores a terminal result with TTL.
func (c *ResultCache) Set(ctx context.Context, reference string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.prefix+reference, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis result set: %w", err)
	}
	return nil
}
