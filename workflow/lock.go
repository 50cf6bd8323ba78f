package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// RemissionLocker serializes the two confirmation writes per remission
// across instances. The production implementation uses redislock; tests use
// the in-memory locker.
type RemissionLocker interface {
	// Obtain blocks briefly for the lock; returns ErrLockNotObtained when
	// another confirmation currently holds it.
	Obtain(ctx context.Context, remissionId string) (ReleaseFunc, error)
}

type ReleaseFunc func(ctx context.Context) error

var ErrLockNotObtained = redislock.ErrNotObtained

type redisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisRemissionLocker(client *redislock.Client) RemissionLocker {
	return &redisLocker{client: client, ttl: 15 * time.Second}
}

func (l *redisLocker) Obtain(ctx context.Context, remissionId string) (ReleaseFunc, error) {
	lock, err := l.client.Obtain(ctx, "lock:remision:"+remissionId, l.ttl,
		&redislock.Options{RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 5)})
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]bool
}

func NewMemoryRemissionLocker() RemissionLocker {
	return &memoryLocker{locks: map[string]bool{}}
}

func (l *memoryLocker) Obtain(ctx context.Context, remissionId string) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[remissionId] {
		return nil, ErrLockNotObtained
	}
	l.locks[remissionId] = true
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locks, remissionId)
		return nil
	}, nil
}
