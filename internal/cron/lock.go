package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/instance"
)

const defaultLockTTL = 30 * time.Minute

// ErrLockLost is returned by Extend when another worker owns the lock or it expired.
var ErrLockLost = errors.New("cron lock lost")

// Lock coordinates exclusive cron runs. Only one worker may expire votes or
// post recurring debits at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// redisStore is the owner-checked Redis surface RedisLock needs. The compare
// operations run as server-side scripts, so no other worker can slip in
// between the owner check and the write.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndExpire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock is a single-owner lease: SETNX with an owner token and a TTL.
// Tokens are <instance>#<uuid> so the holder is readable in Redis.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	holder string
	owner  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl, holder: instance.ID("cron-worker")}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := l.holder + "#" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Extend pushes the TTL forward while this worker still owns the lock.
func (l *RedisLock) Extend(ctx context.Context) error {
	if l.owner == "" {
		return ErrLockLost
	}
	ok, err := l.client.CompareAndExpire(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if !ok {
		l.owner = ""
		return ErrLockLost
	}
	return nil
}

// Release frees the lock only if this worker still owns it. Losing the lock
// in the meantime is not an error.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.client.CompareAndDelete(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
