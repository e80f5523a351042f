// Package cache provides short-lived coordination state shared by workers:
// partition locks that serialise job claims, backed by Redis or process memory.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotHeld is returned when releasing a lock whose token no longer owns the key
var ErrLockNotHeld = errors.New("cache: lock not held")

// Lock is a held partition lock. Token proves ownership on release.
type Lock struct {
	Key   string
	Token string
}

// PartitionLocker hands out exclusive, expiring locks keyed by partition
type PartitionLocker interface {
	// TryLock acquires key for ttl. It returns nil without error when another holder owns it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error)

	// Unlock releases a lock if its token still owns the key
	Unlock(ctx context.Context, lock *Lock) error

	// Close releases resources held by the locker
	Close() error
}
