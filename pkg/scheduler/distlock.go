package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when a lock cannot be obtained.
var ErrLockNotAcquired = errors.New("scheduler: lock not acquired")

// DistributedLock coordinates multiple scheduler processes sharing one
// Store so that only one of them drains a given database file's Inserter
// jobs at a time (spec.md §9 "a deployment may run more than one
// scheduler process against the same local database"). Optional — a
// single-process deployment never needs it. Grounded closely on the
// teacher's DistributedLock (pkg/queue/lock.go).
type DistributedLock struct {
	client    *redis.Client
	keyPrefix string
}

// Lock represents a held lock.
type Lock struct {
	dl       *DistributedLock
	key      string
	value    string
	released bool
}

// NewDistributedLock creates a lock manager backed by an existing
// go-redis client.
func NewDistributedLock(client *redis.Client) *DistributedLock {
	return &DistributedLock{client: client, keyPrefix: "dicomflow:lock:"}
}

// Acquire attempts to take the lock named key for ttl, failing
// immediately with ErrLockNotAcquired if it is already held.
func (dl *DistributedLock) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := dl.keyPrefix + key
	value := fmt.Sprintf("%d", time.Now().UnixNano())

	ok, err := dl.client.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("scheduler: lock acquire: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{dl: dl, key: lockKey, value: value}, nil
}

// TryAcquire retries Acquire with exponential backoff until maxWait
// elapses or ctx is cancelled.
func (dl *DistributedLock) TryAcquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*Lock, error) {
	deadline := time.Now().Add(maxWait)
	backoff := 10 * time.Millisecond

	for time.Now().Before(deadline) {
		lock, err := dl.Acquire(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
	return nil, ErrLockNotAcquired
}

// Release releases the lock, only if it is still the holder's (via a Lua
// compare-and-delete) so a stale caller can never release someone else's
// lock after TTL expiry and re-acquisition.
func (l *Lock) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	if _, err := script.Run(ctx, l.dl.client, []string{l.key}, l.value).Result(); err != nil {
		return fmt.Errorf("scheduler: lock release: %w", err)
	}
	l.released = true
	return nil
}

// WithLock runs fn while holding the lock named key, releasing it
// afterward regardless of fn's outcome.
func (dl *DistributedLock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	lock, err := dl.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)
	return fn()
}
