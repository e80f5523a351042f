package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// lockEntry is a held key with its owner token
type lockEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryPartitionLocker implements PartitionLocker with a map guarded by a mutex.
// It only serialises workers inside one process.
type InMemoryPartitionLocker struct {
	mu      sync.Mutex
	entries map[string]lockEntry
	now     func() time.Time
}

// NewInMemoryPartitionLocker creates an in-memory locker
func NewInMemoryPartitionLocker() *InMemoryPartitionLocker {
	return NewInMemoryPartitionLockerWithClock(time.Now)
}

// NewInMemoryPartitionLockerWithClock creates an in-memory locker reading time from now
func NewInMemoryPartitionLockerWithClock(now func() time.Time) *InMemoryPartitionLocker {
	return &InMemoryPartitionLocker{
		entries: make(map[string]lockEntry),
		now:     now,
	}
}

// TryLock acquires key unless a live entry holds it; expired entries are overwritten
func (l *InMemoryPartitionLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.entries[key]; ok && now.Before(e.expiresAt) {
		return nil, nil
	}

	token := uuid.NewString()
	l.entries[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return &Lock{Key: key, Token: token}, nil
}

// Unlock removes the entry when the token still owns it
func (l *InMemoryPartitionLocker) Unlock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[lock.Key]
	if !ok || e.token != lock.Token || !l.now().Before(e.expiresAt) {
		return ErrLockNotHeld
	}
	delete(l.entries, lock.Key)
	return nil
}

// Close drops every entry
func (l *InMemoryPartitionLocker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]lockEntry)
	return nil
}

// Size returns the number of live locks (for testing/monitoring)
func (l *InMemoryPartitionLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for _, e := range l.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

var _ PartitionLocker = (*InMemoryPartitionLocker)(nil)
