package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRateLimiter(t *testing.T) RateLimiter {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisRateLimiter(client, zap.NewNop())
}

func TestRedisRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := rl.Allow(ctx, "bidder-1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := rl.Allow(ctx, "bidder-1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "sixth request in window should be rejected")
}

func TestRedisRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rl.Allow(ctx, "bidder-1", 3, time.Minute)
		require.NoError(t, err)
	}

	allowed, err := rl.Allow(ctx, "bidder-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLocalRateLimiter(t *testing.T) {
	rl := NewLocalRateLimiter()
	ctx := context.Background()

	allowedCount := 0
	for i := 0; i < 10; i++ {
		allowed, err := rl.Allow(ctx, "bidder-1", 5, time.Minute)
		require.NoError(t, err)
		if allowed {
			allowedCount++
		}
	}

	assert.Equal(t, 5, allowedCount)
}
