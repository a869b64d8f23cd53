package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLocker(client, 2*time.Millisecond, zap.NewNop()), mr
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	locker, _ := newTestRedisLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "auction-1", time.Second, 10*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Second caller cannot get the lock within its budget.
	_, err = locker.Acquire(ctx, "auction-1", 20*time.Millisecond, 10*time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	// Different key is unaffected.
	other, err := locker.Acquire(ctx, "auction-2", time.Second, 10*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, other)

	require.NoError(t, locker.Release(ctx, "auction-1", token))

	token2, err := locker.Acquire(ctx, "auction-1", time.Second, 10*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestRedisLocker_ReleaseIsOwnerFenced(t *testing.T) {
	locker, _ := newTestRedisLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "auction-1", time.Second, 10*time.Second)
	require.NoError(t, err)

	// Releasing with a stale token is a silent no-op.
	require.NoError(t, locker.Release(ctx, "auction-1", "not-the-token"))

	_, err = locker.Acquire(ctx, "auction-1", 20*time.Millisecond, 10*time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired, "lock must still be held after fenced release")

	require.NoError(t, locker.Release(ctx, "auction-1", token))
}

func TestRedisLocker_HoldTTLExpires(t *testing.T) {
	locker, mr := newTestRedisLocker(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "auction-1", time.Second, 50*time.Millisecond)
	require.NoError(t, err)

	// miniredis advances TTLs manually.
	mr.FastForward(60 * time.Millisecond)

	token, err := locker.Acquire(ctx, "auction-1", time.Second, time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	locker, _ := newTestRedisLocker(t)
	ctx := context.Background()

	var holders int32
	var maxHolders int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			token, err := locker.Acquire(ctx, "auction-1", 5*time.Second, time.Second)
			if err != nil {
				return
			}
			cur := atomic.AddInt32(&holders, 1)
			for {
				old := atomic.LoadInt32(&maxHolders)
				if cur <= old || atomic.CompareAndSwapInt32(&maxHolders, old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&holders, -1)
			_ = locker.Release(ctx, "auction-1", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxHolders), "at most one holder at a time")
}

func TestRedisLocker_ContextCancellation(t *testing.T) {
	locker, _ := newTestRedisLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "auction-1", time.Second, 10*time.Second)
	require.NoError(t, err)
	defer locker.Release(ctx, "auction-1", token)

	cancelled, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = locker.Acquire(cancelled, "auction-1", 5*time.Second, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalLocker_SameContract(t *testing.T) {
	locker := NewLocalLocker(2 * time.Millisecond)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "auction-1", time.Second, 10*time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "auction-1", 20*time.Millisecond, 10*time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	// Fenced release.
	require.NoError(t, locker.Release(ctx, "auction-1", "stale"))
	_, err = locker.Acquire(ctx, "auction-1", 20*time.Millisecond, 10*time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, locker.Release(ctx, "auction-1", token))
	_, err = locker.Acquire(ctx, "auction-1", time.Second, 10*time.Second)
	require.NoError(t, err)
}

func TestLocalLocker_TTLExpiry(t *testing.T) {
	locker := NewLocalLocker(2 * time.Millisecond)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "auction-1", time.Second, 20*time.Millisecond)
	require.NoError(t, err)

	// After the hold TTL the lock is acquirable again.
	token, err := locker.Acquire(ctx, "auction-1", time.Second, time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}
