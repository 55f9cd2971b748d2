package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// WorkerLock implements ports.WorkerLock using Redis SET NX, so only one
// instance in the fleet runs a given background worker at a time. The lock
// carries a TTL and expires on its own if the holder dies mid-run.
type WorkerLock struct {
	client *goredis.Client
	prefix string
}

// NewWorkerLock creates a new Redis-backed worker lock.
func NewWorkerLock(client *goredis.Client) *WorkerLock {
	return &WorkerLock{
		client: client,
		prefix: "workerlock:",
	}
}

// Acquire attempts to take the named lock.
// Returns true if this instance now holds it, false if another holder exists.
func (l *WorkerLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	result, err := l.client.SetArgs(ctx, l.prefix+name, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists, another instance holds the lock
			return false, nil
		}
		return false, fmt.Errorf("redis worker lock acquire: %w", err)
	}
	return result == "OK", nil
}

// Release drops the named lock so the next cycle can run anywhere.
func (l *WorkerLock) Release(ctx context.Context, name string) error {
	if err := l.client.Del(ctx, l.prefix+name).Err(); err != nil {
		return fmt.Errorf("redis worker lock release: %w", err)
	}
	return nil
}
