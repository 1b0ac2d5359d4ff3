package lock

import (
	"context"

	"github.com/zhaosoft1982/qsync-go/qsync"
)

// latchSync is the shared-mode policy: state 0 means unsignalled,
// 1 signalled, and the transition is one-way.
type latchSync struct {
	qsync.Base
}

func newLatchSync() *latchSync {
	ls := &latchSync{}
	ls.Init(ls)
	return ls
}

// TryAcquireShared succeeds with propagation once signalled.
func (ls *latchSync) TryAcquireShared(int32) int32 {
	if ls.State() != 0 {
		return 1
	}
	return -1
}

// TryReleaseShared sets the signalled state unconditionally.
func (ls *latchSync) TryReleaseShared(int32) (bool, error) {
	ls.SetState(1)
	return true, nil
}

// Latch is a one-shot gate: waiters block until a single Signal, after
// which every Await returns immediately, forever.
type Latch struct {
	sync *latchSync
}

// NewLatch creates an unsignalled latch.
func NewLatch() *Latch {
	return &Latch{sync: newLatchSync()}
}

// Signal opens the latch and wakes all queued waiters in FIFO order.
// Signalling an already-open latch is a harmless no-op.
func (l *Latch) Signal() {
	l.sync.ReleaseShared(1)
}

// Await blocks until the latch is signalled or ctx is cancelled
// (qsync.ErrInterrupted).
func (l *Latch) Await(ctx context.Context) error {
	return l.sync.AcquireSharedInterruptibly(ctx, 1)
}

// AwaitUninterruptibly blocks until the latch is signalled.
func (l *Latch) AwaitUninterruptibly() {
	l.sync.AcquireShared(1)
}

// IsSignalled reports whether the latch has opened.
func (l *Latch) IsSignalled() bool {
	return l.sync.State() != 0
}
