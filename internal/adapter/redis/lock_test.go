package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLock(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *PassLock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewPassLock(client, DefaultLockKey, ttl)
}

func TestPassLock_ExclusiveUntilReleased(t *testing.T) {
	_, lock := setupTestLock(t, time.Minute)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lease is held")

	require.NoError(t, release(ctx))

	_, ok, err = lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPassLock_ExpiresAfterTTL(t *testing.T) {
	mr, lock := setupTestLock(t, 30*time.Second)
	ctx := context.Background()

	_, ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, mr.TTL(DefaultLockKey))

	mr.FastForward(31 * time.Second)

	_, ok, err = lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPassLock_StaleReleaseKeepsNewHolder(t *testing.T) {
	mr, lock := setupTestLock(t, 30*time.Second)
	ctx := context.Background()

	staleRelease, ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)
	_, ok, err = lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	holder, err := mr.Get(DefaultLockKey)
	require.NoError(t, err)

	require.NoError(t, staleRelease(ctx))

	current, err := mr.Get(DefaultLockKey)
	require.NoError(t, err)
	assert.Equal(t, holder, current)
}

func TestPassLock_RedisDown(t *testing.T) {
	mr, lock := setupTestLock(t, time.Minute)
	mr.Close()

	_, ok, err := lock.Acquire(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, lock.CheckReadiness(context.Background()))
}
