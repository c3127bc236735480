// Package lock provides advisory locks that keep overlapping outcome
// batches from doing the same work twice.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockHeld is returned when the lock is owned by someone else.
var ErrLockHeld = errors.New("lock already held")

// MemoryLocker is an in-process lock manager for single-instance deployments
// and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

// NewMemoryLocker creates a MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), nowFn: time.Now}
}

// Acquire obtains key for ttl. Expired locks are taken over.
func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	if until, ok := m.held[key]; ok && now.Before(until) {
		return nil, ErrLockHeld
	}
	until := now.Add(ttl)
	m.held[key] = until

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.held[key].Equal(until) {
				delete(m.held, key)
			}
		})
	}, nil
}
