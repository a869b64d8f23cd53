package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is a single-process Locker for development and tests. It
// exposes the same contract and expiry semantics as the Redis
// implementation so higher layers are oblivious to the backend.
type LocalLocker struct {
	mu         sync.Mutex
	holders    map[string]localHolder
	retryDelay time.Duration
}

type localHolder struct {
	token     string
	expiresAt time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker(retryDelay time.Duration) *LocalLocker {
	if retryDelay <= 0 {
		retryDelay = 10 * time.Millisecond
	}
	return &LocalLocker{
		holders:    make(map[string]localHolder),
		retryDelay: retryDelay,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, waitBudget, holdTTL time.Duration) (string, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(waitBudget)

	for {
		if l.tryAcquire(key, token, holdTTL) {
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

func (l *LocalLocker) tryAcquire(key, token string, holdTTL time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if h, ok := l.holders[key]; ok && now.Before(h.expiresAt) {
		return false
	}
	l.holders[key] = localHolder{token: token, expiresAt: now.Add(holdTTL)}
	return true
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.holders[key]; ok && h.token == token {
		delete(l.holders, key)
	}
	return nil
}
