// Package qsync implements a FIFO blocking synchronizer: an atomic
// state word plus a CAS-linked queue of parked waiters, specialized by
// a Policy into exclusive (mutex-like) or shared (latch-like) locks.
package qsync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/zhaosoft1982/qsync-go/os"
)

// ErrInterrupted reports that a blocked call was cancelled through its
// context before the resource was granted.
var ErrInterrupted = errors.New("qsync: interrupted")

// ErrNotHeld reports a release or condition operation attempted
// without holding the resource exclusively.
var ErrNotHeld = errors.New("qsync: monitor not held")

// Policy supplies the acquisition hooks that specialize a
// Synchronizer. Hook failure means "not yet acquirable", never an
// error; the only errors the generic algorithms surface are
// ErrInterrupted and ErrNotHeld.
type Policy interface {
	// TryAcquire attempts an exclusive acquisition in one atomic step.
	TryAcquire(arg int32) bool
	// TryRelease attempts an exclusive release in one atomic step.
	TryRelease(arg int32) (bool, error)
	// TryAcquireShared attempts a shared acquisition: negative means
	// fail, zero success, positive success that propagates to further
	// shared waiters.
	TryAcquireShared(arg int32) int32
	// TryReleaseShared attempts a shared release.
	TryReleaseShared(arg int32) (bool, error)
	// IsHeldExclusively reports whether the caller holds the resource.
	IsHeldExclusively() bool
}

// Base is an embeddable default Policy whose hooks all panic. A
// concrete policy embeds Base, overrides the hooks for the modes it
// supports, and wires itself with Init.
type Base struct {
	*Synchronizer
}

// Init creates the Synchronizer driven by policy p.
func (b *Base) Init(p Policy) {
	b.Synchronizer = New(p)
}

// TryAcquire fails: exclusive mode is unsupported by default.
func (b *Base) TryAcquire(int32) bool { panic("qsync: exclusive mode unsupported") }

// TryRelease fails: exclusive mode is unsupported by default.
func (b *Base) TryRelease(int32) (bool, error) { panic("qsync: exclusive mode unsupported") }

// TryAcquireShared fails: shared mode is unsupported by default.
func (b *Base) TryAcquireShared(int32) int32 { panic("qsync: shared mode unsupported") }

// TryReleaseShared fails: shared mode is unsupported by default.
func (b *Base) TryReleaseShared(int32) (bool, error) { panic("qsync: shared mode unsupported") }

// IsHeldExclusively fails: exclusive mode is unsupported by default.
func (b *Base) IsHeldExclusively() bool { panic("qsync: exclusive mode unsupported") }

// Synchronizer owns the state word and the FIFO wait queue. The head
// is a sentinel once initialized; tail.next is always nil. All queue
// mutation is CAS-based, the only blocking is the per-node parker.
type Synchronizer struct {
	policy Policy
	state  atomic.Int32
	head   atomic.Pointer[node]
	tail   atomic.Pointer[node]
	owner  atomic.Uint64
}

// New creates a Synchronizer driven by policy p.
func New(p Policy) *Synchronizer {
	return &Synchronizer{policy: p}
}

// State returns the current state word.
func (s *Synchronizer) State() int32 {
	return s.state.Load()
}

// SetState stores the state word unconditionally.
func (s *Synchronizer) SetState(v int32) {
	s.state.Store(v)
}

// CompareAndSetState atomically updates the state word if it holds old.
func (s *Synchronizer) CompareAndSetState(old, new int32) bool {
	return s.state.CompareAndSwap(old, new)
}

// SetExclusiveOwner records the thread holding exclusive access.
// Diagnostic only; correctness rests on the state word.
func (s *Synchronizer) SetExclusiveOwner(id os.ThreadID) {
	s.owner.Store(os.ThreadPF(id))
}

// ExclusiveOwner returns the recorded exclusive owner, zero if none.
func (s *Synchronizer) ExclusiveOwner() os.ThreadID {
	return os.ThreadID(s.owner.Load())
}

// Acquire blocks uninterruptibly until TryAcquire succeeds.
func (s *Synchronizer) Acquire(arg int32) {
	if s.policy.TryAcquire(arg) {
		return
	}
	n := s.addWaiter(modeExclusive)
	s.doAcquire(context.Background(), n, arg, false, time.Time{})
}

// AcquireInterruptibly blocks until TryAcquire succeeds or ctx is
// cancelled, in which case it fails with ErrInterrupted.
func (s *Synchronizer) AcquireInterruptibly(ctx context.Context, arg int32) error {
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	if s.policy.TryAcquire(arg) {
		return nil
	}
	n := s.addWaiter(modeExclusive)
	_, err := s.doAcquire(ctx, n, arg, false, time.Time{})
	return err
}

// TryAcquireNanos blocks until TryAcquire succeeds, the timeout
// elapses (false, nil), or ctx is cancelled (ErrInterrupted).
func (s *Synchronizer) TryAcquireNanos(ctx context.Context, arg int32, timeout time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ErrInterrupted
	}
	if s.policy.TryAcquire(arg) {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	n := s.addWaiter(modeExclusive)
	return s.doAcquire(ctx, n, arg, true, time.Now().Add(timeout))
}

// Release runs TryRelease and, on success, unparks the first live
// waiter after the sentinel.
func (s *Synchronizer) Release(arg int32) (bool, error) {
	ok, err := s.policy.TryRelease(arg)
	if err != nil || !ok {
		return ok, err
	}
	s.unparkSuccessor()
	return true, nil
}

// AcquireShared blocks uninterruptibly until TryAcquireShared reports
// success.
func (s *Synchronizer) AcquireShared(arg int32) {
	if s.policy.TryAcquireShared(arg) >= 0 {
		return
	}
	n := s.addWaiter(modeShared)
	s.doAcquire(context.Background(), n, arg, false, time.Time{})
}

// AcquireSharedInterruptibly blocks until TryAcquireShared reports
// success or ctx is cancelled.
func (s *Synchronizer) AcquireSharedInterruptibly(ctx context.Context, arg int32) error {
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	if s.policy.TryAcquireShared(arg) >= 0 {
		return nil
	}
	n := s.addWaiter(modeShared)
	_, err := s.doAcquire(ctx, n, arg, false, time.Time{})
	return err
}

// TryAcquireSharedNanos is the timed form of shared acquisition.
func (s *Synchronizer) TryAcquireSharedNanos(ctx context.Context, arg int32, timeout time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ErrInterrupted
	}
	if s.policy.TryAcquireShared(arg) >= 0 {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	n := s.addWaiter(modeShared)
	return s.doAcquire(ctx, n, arg, true, time.Now().Add(timeout))
}

// ReleaseShared runs TryReleaseShared and, on success, starts the
// shared wakeup chain.
func (s *Synchronizer) ReleaseShared(arg int32) (bool, error) {
	ok, err := s.policy.TryReleaseShared(arg)
	if err != nil || !ok {
		return ok, err
	}
	s.doReleaseShared()
	return true, nil
}

// HasQueuedThreads reports whether any live waiter is queued.
// Best-effort snapshot.
func (s *Synchronizer) HasQueuedThreads() bool {
	h := s.head.Load()
	return h != nil && s.firstLive(h) != nil
}

// QueueLength counts live queued waiters. Best-effort snapshot.
func (s *Synchronizer) QueueLength() int {
	h := s.head.Load()
	if h == nil {
		return 0
	}
	count := 0
	for t := s.tail.Load(); t != nil && t != h; t = t.prev.Load() {
		if st := t.status.Load(); st != statusCancelled && st != statusDequeued {
			count++
		}
	}
	return count
}

// doAcquire runs the queued acquire protocol for node n until the
// policy hook succeeds, the deadline passes (timed form, false with no
// error), or ctx is cancelled (ErrInterrupted). A timeout or interrupt
// racing a concurrent grant is resolved by the CAS on the node status:
// cancel wins iff its initial-to-cancelled CAS wins; a waiter that
// loses consumes the wakeup, retries the hook once more, and on
// failure cancels and forwards the wakeup to the next live waiter.
func (s *Synchronizer) doAcquire(ctx context.Context, n *node, arg int32, timed bool, deadline time.Time) (bool, error) {
	for {
		if s.eligible(n) {
			if n.mode == modeShared {
				if r := s.policy.TryAcquireShared(arg); r >= 0 {
					s.setHeadAndPropagate(n, r)
					return true, nil
				}
			} else if s.policy.TryAcquire(arg) {
				s.setHead(n)
				return true, nil
			}
		}
		atomic.AddInt64(&ParkCount, 1)
		var timedOut bool
		var err error
		if timed {
			timedOut, err = n.parker.ParkDeadline(ctx, deadline)
		} else {
			err = n.parker.ParkContext(ctx)
		}
		if err == nil && !timedOut {
			n.resetGrant()
			continue
		}
		if n.cancel() {
			s.finishCancel(n)
			if err != nil {
				return false, ErrInterrupted
			}
			return false, nil
		}
		// A release granted this node first; consume the grant and take
		// one more pass at the hook before trying to cancel again.
		n.resetGrant()
	}
}

// addWaiter enqueues a new node for the calling goroutine.
func (s *Synchronizer) addWaiter(m mode) *node {
	n := newNode(m)
	if t := s.tail.Load(); t != nil {
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return n
		}
	}
	s.enq(n)
	return n
}

// enq inserts n at the tail, initializing the sentinel head on first
// contention.
func (s *Synchronizer) enq(n *node) {
	for {
		t := s.tail.Load()
		if t == nil {
			h := &node{}
			h.status.Store(statusDequeued)
			if s.head.CompareAndSwap(nil, h) {
				s.tail.Store(h)
			}
			continue
		}
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return
		}
	}
}

// skipCancelled drops cancelled predecessors from n's prev chain and
// returns the resulting predecessor.
func (s *Synchronizer) skipCancelled(n *node) *node {
	p := n.prev.Load()
	for p != nil && p.status.Load() == statusCancelled {
		pp := p.prev.Load()
		if pp == nil {
			break
		}
		n.prev.Store(pp)
		p = pp
	}
	return p
}

// eligible reports whether n is first in line to retry its hook.
func (s *Synchronizer) eligible(n *node) bool {
	return s.skipCancelled(n) == s.head.Load()
}

// setHead promotes n to queue sentinel after a successful acquisition.
// The status is marked before the head moves so a stale release scan
// cannot select n.
func (s *Synchronizer) setHead(n *node) {
	n.status.Store(statusDequeued)
	s.head.Store(n)
	n.prev.Store(nil)
}

// setHeadAndPropagate promotes a shared winner and continues the
// wakeup chain when the hook reported propagation or the grant did.
func (s *Synchronizer) setHeadAndPropagate(n *node, r int32) {
	propagate := r > 0 || n.status.Load() == statusPropagate
	s.setHead(n)
	if !propagate {
		return
	}
	if nx := n.next.Load(); nx == nil || nx.mode == modeShared {
		s.doReleaseShared()
	}
}

// firstLive returns the first non-cancelled waiter after the sentinel.
// It scans backward from the tail: a node's prev link is published
// before the tail CAS, so the backward walk sees nodes whose next link
// is still unset.
func (s *Synchronizer) firstLive(h *node) *node {
	var first *node
	for t := s.tail.Load(); t != nil && t != h; t = t.prev.Load() {
		if st := t.status.Load(); st != statusCancelled && st != statusDequeued {
			first = t
		}
	}
	return first
}

// unparkSuccessor grants a wakeup to the first live waiter, rescanning
// when a cancellation wins the status race.
func (s *Synchronizer) unparkSuccessor() {
	for {
		h := s.head.Load()
		if h == nil {
			return
		}
		n := s.firstLive(h)
		if n == nil {
			return
		}
		if n.status.CompareAndSwap(statusInitial, statusSignalled) {
			atomic.AddInt64(&UnparkCount, 1)
			n.parker.Unpark()
			return
		}
		switch n.status.Load() {
		case statusSignalled, statusPropagate:
			// a wakeup is already in flight for this node
			n.parker.Unpark()
			return
		}
	}
}

// doReleaseShared grants a wakeup to the first live waiter, marking a
// shared waiter for propagation so it continues the chain even when
// its own hook reports none.
func (s *Synchronizer) doReleaseShared() {
	for {
		h := s.head.Load()
		if h == nil {
			return
		}
		n := s.firstLive(h)
		if n == nil {
			return
		}
		want := statusSignalled
		if n.mode == modeShared {
			want = statusPropagate
		}
		if n.status.CompareAndSwap(statusInitial, want) {
			atomic.AddInt64(&UnparkCount, 1)
			n.parker.Unpark()
			return
		}
		switch n.status.Load() {
		case statusSignalled, statusPropagate:
			n.parker.Unpark()
			return
		}
	}
}

// finishCancel unlinks a cancelled node lazily and keeps a racing
// release from losing its wakeup.
func (s *Synchronizer) finishCancel(n *node) {
	atomic.AddInt64(&CancelCount, 1)
	p := s.skipCancelled(n)
	if p != nil {
		if nx := n.next.Load(); nx != nil && nx.status.Load() != statusCancelled {
			p.next.CompareAndSwap(n, nx)
		}
	}
	// If n was first in line a release may have already scanned past
	// the live waiters behind it.
	if p == s.head.Load() {
		s.unparkSuccessor()
	}
}

// onSyncQueue reports whether a condition node has been transferred to
// the main queue.
func (s *Synchronizer) onSyncQueue(n *node) bool {
	if n.status.Load() == statusCondition || n.prev.Load() == nil {
		return false
	}
	if n.next.Load() != nil {
		return true
	}
	for t := s.tail.Load(); t != nil; t = t.prev.Load() {
		if t == n {
			return true
		}
	}
	return false
}

// transferForSignal moves a condition waiter to the main queue. It
// reports false when the waiter cancelled first.
func (s *Synchronizer) transferForSignal(n *node) bool {
	if !n.status.CompareAndSwap(statusCondition, statusInitial) {
		return false
	}
	s.enq(n)
	n.parker.Unpark()
	return true
}
