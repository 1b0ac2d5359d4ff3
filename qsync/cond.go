package qsync

import (
	"context"
	"time"

	"github.com/zhaosoft1982/qsync-go/os"
)

// Cond is a condition wait list bound to a Synchronizer used in
// exclusive mode. A waiter lives on exactly one of the condition list
// or the main queue; Signal transfers it atomically via the status
// CAS. All list manipulation runs while the exclusive hold is owned.
type Cond struct {
	s           *Synchronizer
	firstWaiter *node
	lastWaiter  *node
}

// NewCond creates a condition bound to s.
func (s *Synchronizer) NewCond() *Cond {
	return &Cond{s: s}
}

// Await releases the exclusive hold, blocks until the waiter is
// signalled or ctx is cancelled, reacquires the hold, and only then
// returns. Fails with ErrNotHeld when the caller does not hold the
// resource, ErrInterrupted on cancellation (the hold is still
// reacquired first).
func (c *Cond) Await(ctx context.Context) error {
	if !c.s.policy.IsHeldExclusively() {
		return ErrNotHeld
	}
	n := c.addWaiter()
	saved := c.s.State()
	if ok, err := c.s.Release(saved); err != nil || !ok {
		n.status.Store(statusCancelled)
		if err == nil {
			err = ErrNotHeld
		}
		return err
	}
	interrupted := false
	for !c.s.onSyncQueue(n) {
		if err := n.parker.ParkContext(ctx); err != nil {
			if n.status.CompareAndSwap(statusCondition, statusInitial) {
				c.s.enq(n)
				interrupted = true
			}
			break
		}
	}
	// A signal that won the cancellation race may still be mid
	// transfer; its enq must complete before reacquiring.
	for !c.s.onSyncQueue(n) {
		os.ThreadYield()
	}
	c.s.doAcquire(context.Background(), n, saved, false, time.Time{})
	c.unlinkCancelled()
	if interrupted || ctx.Err() != nil {
		return ErrInterrupted
	}
	return nil
}

// Signal transfers the longest-waiting eligible waiter to the main
// queue. Fails with ErrNotHeld when the caller does not hold the
// resource.
func (c *Cond) Signal() error {
	if !c.s.policy.IsHeldExclusively() {
		return ErrNotHeld
	}
	for f := c.firstWaiter; f != nil; f = c.firstWaiter {
		c.firstWaiter = f.nextWaiter
		if c.firstWaiter == nil {
			c.lastWaiter = nil
		}
		f.nextWaiter = nil
		if c.s.transferForSignal(f) {
			break
		}
	}
	return nil
}

// SignalAll transfers every waiter to the main queue in FIFO order.
func (c *Cond) SignalAll() error {
	if !c.s.policy.IsHeldExclusively() {
		return ErrNotHeld
	}
	f := c.firstWaiter
	c.firstWaiter = nil
	c.lastWaiter = nil
	for f != nil {
		next := f.nextWaiter
		f.nextWaiter = nil
		c.s.transferForSignal(f)
		f = next
	}
	return nil
}

// HasWaiters reports whether any waiter is on the condition list.
// Caller must hold the resource.
func (c *Cond) HasWaiters() bool {
	for n := c.firstWaiter; n != nil; n = n.nextWaiter {
		if n.status.Load() == statusCondition {
			return true
		}
	}
	return false
}

func (c *Cond) addWaiter() *node {
	if t := c.lastWaiter; t != nil && t.status.Load() != statusCondition {
		c.unlinkCancelled()
	}
	n := newNode(modeExclusive)
	n.status.Store(statusCondition)
	if c.lastWaiter == nil {
		c.firstWaiter = n
	} else {
		c.lastWaiter.nextWaiter = n
	}
	c.lastWaiter = n
	return n
}

// unlinkCancelled removes waiters no longer at statusCondition from
// the list. Runs only while the exclusive hold is owned.
func (c *Cond) unlinkCancelled() {
	var trail *node
	n := c.firstWaiter
	for n != nil {
		next := n.nextWaiter
		if n.status.Load() != statusCondition {
			n.nextWaiter = nil
			if trail == nil {
				c.firstWaiter = next
			} else {
				trail.nextWaiter = next
			}
			if next == nil {
				c.lastWaiter = trail
			}
		} else {
			trail = n
		}
		n = next
	}
}
