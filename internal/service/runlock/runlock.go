package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"BarFeed/pkg/cache"
)

// Local is an in-process run lock.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local { return &Local{} }

func (l *Local) TryLock(context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *Local) Unlock(context.Context) error {
	l.mu.Unlock()
	return nil
}

// Redis is a cross-process run lock on a single key. The TTL bounds how long a crashed
// holder can block other runs.
type Redis struct {
	locker cache.Locker
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedis creates a lock named after symbol. Each instance uses its own owner token.
func NewRedis(locker cache.Locker, symbol string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{
		locker: locker,
		key:    fmt.Sprintf("ingest:lock:%s", symbol),
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (r *Redis) TryLock(ctx context.Context) (bool, error) {
	ok, err := r.locker.TryLock(ctx, r.key, r.owner, r.ttl)
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", r.key, err)
	}
	return ok, nil
}

func (r *Redis) Unlock(ctx context.Context) error {
	err := r.locker.Unlock(ctx, r.key, r.owner)
	if errors.Is(err, cache.ErrLockNotHeld) {
		return fmt.Errorf("redis lock %s expired before release: %w", r.key, err)
	}
	return err
}
