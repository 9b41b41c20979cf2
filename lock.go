package asyncmqtt

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Locker serializes access to the client state shared by application calls
// and transport events.
type Locker interface {
	// Lock waits until the lock is held.
	Lock()

	// TryLockTimeout waits at most d and reports whether the lock is held.
	TryLockTimeout(d time.Duration) bool

	// Unlock releases the lock.
	Unlock()
}

// SemaphoreLocker is a Locker built on a weighted semaphore of size one,
// which unlike sync.Mutex supports a bounded wait.
type SemaphoreLocker struct {
	sem *semaphore.Weighted
}

// NewSemaphoreLocker creates an unlocked SemaphoreLocker.
func NewSemaphoreLocker() *SemaphoreLocker {
	return &SemaphoreLocker{sem: semaphore.NewWeighted(1)}
}

// Lock waits until the lock is held.
func (l *SemaphoreLocker) Lock() {
	_ = l.sem.Acquire(context.Background(), 1)
}

// TryLockTimeout waits at most d for the lock.
func (l *SemaphoreLocker) TryLockTimeout(d time.Duration) bool {
	if l.sem.TryAcquire(1) {
		return true
	}
	if d <= 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	return l.sem.Acquire(ctx, 1) == nil
}

// Unlock releases the lock.
func (l *SemaphoreLocker) Unlock() {
	l.sem.Release(1)
}

// NoOpLocker is for clients driven from a single goroutine.
type NoOpLocker struct{}

// Lock does nothing.
func (NoOpLocker) Lock() {}

// TryLockTimeout always succeeds.
func (NoOpLocker) TryLockTimeout(time.Duration) bool { return true }

// Unlock does nothing.
func (NoOpLocker) Unlock() {}
