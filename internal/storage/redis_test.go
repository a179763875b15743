package storage

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/config"
)

func setupTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	cache, err := NewRedisCache(&config.RedisConfig{Host: host, Port: port, MaxConnections: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return cache, mr
}

func TestAcquireLockGrantsOnFirstCall(t *testing.T) {
	cache, _ := setupTestRedisCache(t)
	ctx := context.Background()

	acquired, err := cache.AcquireLock(ctx, "lock:evm:whale-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestAcquireLockRejectsSecondCallerWhileHeld(t *testing.T) {
	cache, _ := setupTestRedisCache(t)
	ctx := context.Background()

	first, err := cache.AcquireLock(ctx, "lock:evm:whale-1", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	second, err := cache.AcquireLock(ctx, "lock:evm:whale-1", time.Minute)
	require.NoError(t, err)
	require.False(t, second, "a lock already held should not be granted again")
}

func TestReleaseLockAllowsReacquisition(t *testing.T) {
	cache, _ := setupTestRedisCache(t)
	ctx := context.Background()

	_, err := cache.AcquireLock(ctx, "lock:evm:whale-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, cache.ReleaseLock(ctx, "lock:evm:whale-1"))

	reacquired, err := cache.AcquireLock(ctx, "lock:evm:whale-1", time.Minute)
	require.NoError(t, err)
	require.True(t, reacquired)
}

func TestLocksAreIndependentPerKey(t *testing.T) {
	cache, _ := setupTestRedisCache(t)
	ctx := context.Background()

	a, err := cache.AcquireLock(ctx, "lock:evm:whale-1", time.Minute)
	require.NoError(t, err)
	require.True(t, a)

	b, err := cache.AcquireLock(ctx, "lock:utxo:whale-1", time.Minute)
	require.NoError(t, err)
	require.True(t, b, "lock for a different source should be independent")
}

func TestAcquireLockExpiresAfterTTL(t *testing.T) {
	cache, mr := setupTestRedisCache(t)
	ctx := context.Background()

	_, err := cache.AcquireLock(ctx, "lock:evm:whale-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	reacquired, err := cache.AcquireLock(ctx, "lock:evm:whale-1", time.Minute)
	require.NoError(t, err)
	require.True(t, reacquired, "lock should be acquirable again once its TTL has elapsed")
}
