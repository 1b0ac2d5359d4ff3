// Package lock provides the concrete synchronization primitives built
// over qsync: a non-reentrant mutual-exclusion lock with condition
// support, and a one-shot boolean latch.
package lock

import (
	"context"
	"time"

	"github.com/zhaosoft1982/qsync-go/os"
	"github.com/zhaosoft1982/qsync-go/qsync"
)

// mutexSync is the exclusive-mode policy: state 0 means unlocked,
// 1 locked, nothing else is ever observed.
type mutexSync struct {
	qsync.Base
}

func newMutexSync() *mutexSync {
	ms := &mutexSync{}
	ms.Init(ms)
	return ms
}

// TryAcquire succeeds only via a single CAS of state from 0 to 1.
// A holder that acquires again blocks forever: the lock is
// non-reentrant.
func (ms *mutexSync) TryAcquire(int32) bool {
	if ms.CompareAndSetState(0, 1) {
		ms.SetExclusiveOwner(os.ThreadGetCurrID())
		return true
	}
	return false
}

// TryRelease fails with ErrNotHeld when the lock is not held.
func (ms *mutexSync) TryRelease(int32) (bool, error) {
	if ms.State() == 0 {
		return false, qsync.ErrNotHeld
	}
	ms.SetExclusiveOwner(0)
	ms.SetState(0)
	return true, nil
}

// IsHeldExclusively reports the locked state.
func (ms *mutexSync) IsHeldExclusively() bool {
	return ms.State() == 1
}

// Mutex is a non-reentrant mutual-exclusion lock.
type Mutex struct {
	sync *mutexSync
}

// NewMutex creates an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{sync: newMutexSync()}
}

// Lock acquires the mutex, blocking uninterruptibly.
func (m *Mutex) Lock() {
	m.sync.Acquire(1)
}

// LockInterruptibly acquires the mutex, failing with
// qsync.ErrInterrupted when ctx is cancelled while blocked.
func (m *Mutex) LockInterruptibly(ctx context.Context) error {
	return m.sync.AcquireInterruptibly(ctx, 1)
}

// TryLock acquires the mutex without blocking. A false return is a
// normal outcome, not a failure.
func (m *Mutex) TryLock() bool {
	return m.sync.TryAcquire(1)
}

// TryLockTimeout acquires the mutex, giving up after timeout (false)
// or when ctx is cancelled (qsync.ErrInterrupted).
func (m *Mutex) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	return m.sync.TryAcquireNanos(ctx, 1, timeout)
}

// Unlock releases the mutex. Fails with qsync.ErrNotHeld when the
// mutex is not locked.
func (m *Mutex) Unlock() error {
	_, err := m.sync.Release(1)
	return err
}

// NewCond returns a condition bound to this mutex. Using it without
// holding the mutex fails with qsync.ErrNotHeld.
func (m *Mutex) NewCond() *qsync.Cond {
	return m.sync.NewCond()
}

// IsLocked reports the locked state. Best-effort snapshot.
func (m *Mutex) IsLocked() bool {
	return m.sync.IsHeldExclusively()
}

// HasQueuedThreads reports whether any goroutine is blocked on the
// mutex. Best-effort snapshot.
func (m *Mutex) HasQueuedThreads() bool {
	return m.sync.HasQueuedThreads()
}

// QueueLength counts goroutines blocked on the mutex. Best-effort
// snapshot.
func (m *Mutex) QueueLength() int {
	return m.sync.QueueLength()
}

// Owner returns the thread id recorded for the current holder, zero
// when unlocked. Diagnostic only.
func (m *Mutex) Owner() os.ThreadID {
	return m.sync.ExclusiveOwner()
}
