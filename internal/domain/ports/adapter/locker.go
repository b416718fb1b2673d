package adapter

import (
	"context"
	"time"
)

// Locker is a best-effort distributed mutex.
type Locker interface {
	// TryLock returns domain.ErrLockNotAcquired when the key is held elsewhere.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
