package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrLockNotHeld is returned by Unlock when the key is gone or owned by someone else.
	ErrLockNotHeld = errors.New("cache: lock not held")
)

// Locker is a distributed try-lock keyed by name.
type Locker interface {
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
}

// Service defines cache operations interface.
type Service interface {
	Locker
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Ping(ctx context.Context) error
}
