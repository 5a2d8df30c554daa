// Package lock provides a mutual-exclusion lock whose acquisition is always
// bounded in time.
//
// The broker never waits on its lock indefinitely. A caller that cannot
// acquire it within the configured timeout gets mq.ErrLockTimeout and is
// expected to report the failure rather than block its goroutine.
package lock

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dshills/topicmq/internal/mq"
)

// Mutex is a lock with bounded-wait acquisition.
// The zero value is not usable; create one with New.
type Mutex struct {
	sem *semaphore.Weighted
}

// New creates an unlocked Mutex.
func New() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// Lock acquires the mutex, waiting at most timeout. It returns
// mq.ErrLockTimeout only when the wait expires. If ctx is done first, the
// context error is returned wrapped and the lock is not taken.
// A timeout <= 0 only tries once.
func (m *Mutex) Lock(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if timeout <= 0 {
		if m.sem.TryAcquire(1) {
			return nil
		}
		return mq.ErrLockTimeout
	}

	wait, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.sem.Acquire(wait, 1); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("lock: %w", cerr)
		}
		return mq.ErrLockTimeout
	}
	return nil
}

// TryLock acquires the mutex without waiting.
func (m *Mutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// Unlock releases the mutex. Unlocking an unlocked Mutex panics.
func (m *Mutex) Unlock() {
	m.sem.Release(1)
}
