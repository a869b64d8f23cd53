package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the wait budget elapses before the lock
// becomes available. Callers should surface it as a retryable condition.
var ErrNotAcquired = errors.New("lock: not acquired within wait budget")

// Locker is a per-key mutual exclusion primitive shared across all API
// instances. Acquire returns an opaque owner token; Release is a no-op
// unless the token still matches the current holder, so a holder whose TTL
// already fired cannot release its successor's lock.
type Locker interface {
	Acquire(ctx context.Context, key string, waitBudget, holdTTL time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}
