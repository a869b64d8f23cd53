package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "auction_lock:"

// releaseScript deletes the lock key only when the stored token matches the
// caller's. Compare-and-delete must be atomic or a holder whose TTL fired
// could release the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// RedisLocker implements Locker on a single Redis instance using
// SET NX PX with a per-acquisition owner token.
type RedisLocker struct {
	client     *redis.Client
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewRedisLocker creates a Redis-backed locker. retryDelay is the sleep
// between acquisition attempts; zero selects 10ms.
func NewRedisLocker(client *redis.Client, retryDelay time.Duration, logger *zap.Logger) *RedisLocker {
	if retryDelay <= 0 {
		retryDelay = 10 * time.Millisecond
	}
	return &RedisLocker{
		client:     client,
		logger:     logger,
		retryDelay: retryDelay,
	}
}

// Acquire attempts SET key token NX PX holdTTL in a retry loop until the
// wait budget elapses. The hold TTL bounds the blast radius of a holder
// that dies without releasing.
func (l *RedisLocker) Acquire(ctx context.Context, key string, waitBudget, holdTTL time.Duration) (string, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(waitBudget)
	redisKey := keyPrefix + key

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, holdTTL).Result()
		if err != nil {
			l.logger.Error("lock acquire failed",
				zap.String("key", key),
				zap.Error(err))
			return "", fmt.Errorf("lock acquire failed: %w", err)
		}
		if ok {
			return token, nil
		}

		if time.Now().After(deadline) {
			return "", ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

// Release removes the lock if the token still matches the current holder.
// A non-matching or absent holder is a silent no-op.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil && err != redis.Nil {
		l.logger.Error("lock release failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}
