package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhaosoft1982/qsync-go/qsync"
)

func TestLatchSignalReleasesAllWaiters(t *testing.T) {
	l := NewLatch()
	if l.IsSignalled() {
		t.Fatalf("fresh latch signalled")
	}
	const waiters = 3
	done := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			done <- l.Await(context.Background())
		}()
	}
	select {
	case <-done:
		t.Fatalf("await returned before signal")
	case <-time.After(20 * time.Millisecond):
	}
	l.Signal()
	for i := 0; i < waiters; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("await: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d waiters released", i, waiters)
		}
	}
	// a late arrival passes straight through
	if err := l.Await(context.Background()); err != nil {
		t.Fatalf("late await: %v", err)
	}
}

func TestLatchMonotonic(t *testing.T) {
	l := NewLatch()
	l.Signal()
	for i := 0; i < 100; i++ {
		if !l.IsSignalled() {
			t.Fatalf("latch regressed at read %d", i)
		}
	}
	// repeated signals are harmless
	l.Signal()
	l.Signal()
	if !l.IsSignalled() {
		t.Fatalf("latch regressed after repeated signals")
	}
}

func TestLatchAwaitInterrupted(t *testing.T) {
	l := NewLatch()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Await(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, qsync.ErrInterrupted) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("interrupt did not wake latch waiter")
	}
	// interrupted waiter must not block a later signal
	l.Signal()
	if err := l.Await(context.Background()); err != nil {
		t.Fatalf("await after signal: %v", err)
	}
}

func TestLatchAwaitUninterruptibly(t *testing.T) {
	l := NewLatch()
	done := make(chan struct{})
	go func() {
		l.AwaitUninterruptibly()
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("await returned before signal")
	case <-time.After(20 * time.Millisecond):
	}
	l.Signal()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("signal did not release waiter")
	}
}
