package os

import (
	"context"
	"sync/atomic"
	"time"
)

// ParkerCount tracks created parkers.
var ParkerCount uint64

// Parker is a single-slot blocking/wakeup channel for one waiting
// goroutine. An Unpark delivered before the matching Park leaves a
// permit behind, so the wakeup is never lost.
type Parker struct {
	permit chan struct{}
}

// NewParker creates a parker with no pending permit.
func NewParker() *Parker {
	atomic.AddUint64(&ParkerCount, 1)
	return &Parker{permit: make(chan struct{}, 1)}
}

// Unpark makes a permit available, waking the parked goroutine if one
// is blocked. At most one permit is retained.
func (p *Parker) Unpark() {
	if p == nil {
		return
	}
	select {
	case p.permit <- struct{}{}:
	default:
	}
}

// Park blocks until a permit is available and consumes it.
func (p *Parker) Park() {
	<-p.permit
}

// ParkContext blocks until a permit is available or ctx is done.
// It returns nil when unparked and the ctx error on cancellation.
func (p *Parker) ParkContext(ctx context.Context) error {
	select {
	case <-p.permit:
		return nil
	default:
	}
	select {
	case <-p.permit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ParkDeadline blocks until a permit is available, the deadline
// passes, or ctx is done. A permit already pending wins over an
// already-expired deadline.
func (p *Parker) ParkDeadline(ctx context.Context, deadline time.Time) (timedOut bool, err error) {
	select {
	case <-p.permit:
		return false, nil
	default:
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return true, nil
	}
	timer := time.NewTimer(remaining)
	select {
	case <-p.permit:
		if !timer.Stop() {
			<-timer.C
		}
		return false, nil
	case <-timer.C:
		return true, nil
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return false, ctx.Err()
	}
}
