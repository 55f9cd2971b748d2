package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerLock_Acquire(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewWorkerLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "reconciler", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "first acquire should succeed")
}

func TestWorkerLock_Acquire_AlreadyHeld(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewWorkerLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "reconciler", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second instance contends for the same lock
	ok, err = lock.Acquire(ctx, "reconciler", 90*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "contended acquire should fail")
}

func TestWorkerLock_Release(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewWorkerLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "reconciler", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	err = lock.Release(ctx, "reconciler")
	require.NoError(t, err)

	ok, err = lock.Acquire(ctx, "reconciler", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "released lock should be acquirable again")
}

func TestWorkerLock_TTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewWorkerLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "reconciler", 1*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Holder dies; lock expires on its own
	s.FastForward(2 * time.Second)

	ok, err = lock.Acquire(ctx, "reconciler", 1*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock should be acquirable")
}

func TestWorkerLock_DifferentNames(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewWorkerLock(client)
	ctx := context.Background()

	ok1, err := lock.Acquire(ctx, "reconciler", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := lock.Acquire(ctx, "sweeper", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok2, "different lock names should not contend")
}
