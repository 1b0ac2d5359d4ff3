package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhaosoft1982/qsync-go/qsync"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTryLockHandoff(t *testing.T) {
	m := NewMutex()
	m.Lock()
	observed := make(chan bool, 1)
	done := make(chan struct{})
	go func() {
		observed <- m.TryLock()
		<-done
		observed <- m.TryLock()
	}()
	if got := <-observed; got {
		t.Fatalf("trylock succeeded on a held mutex")
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	close(done)
	if got := <-observed; !got {
		t.Fatalf("trylock failed on a free mutex")
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestNonReentrant(t *testing.T) {
	m := NewMutex()
	m.Lock()
	// a second acquisition by the same goroutine blocks; the timed
	// variant observes the timeout instead of deadlocking the test
	got, err := m.TryLockTimeout(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("timed lock: %v", err)
	}
	if got {
		t.Fatalf("reentrant acquisition succeeded")
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestUnlockWithoutHold(t *testing.T) {
	m := NewMutex()
	if err := m.Unlock(); !errors.Is(err, qsync.ErrNotHeld) {
		t.Fatalf("err=%v, want ErrNotHeld", err)
	}
}

func TestLockInterruptibly(t *testing.T) {
	m := NewMutex()
	m.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.LockInterruptibly(ctx)
	}()
	waitFor(t, "waiter to queue", m.HasQueuedThreads)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, qsync.ErrInterrupted) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("interrupt did not wake waiter")
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestTimeoutRestoresQueueLength(t *testing.T) {
	m := NewMutex()
	m.Lock()
	before := m.QueueLength()
	start := time.Now()
	got, err := m.TryLockTimeout(context.Background(), 50*time.Millisecond)
	if err != nil || got {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("returned early after %v", elapsed)
	}
	waitFor(t, "queue length to restore", func() bool { return m.QueueLength() == before })
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestDiagnostics(t *testing.T) {
	m := NewMutex()
	if m.IsLocked() || m.HasQueuedThreads() || m.Owner() != 0 {
		t.Fatalf("fresh mutex not idle")
	}
	m.Lock()
	if !m.IsLocked() {
		t.Fatalf("IsLocked false while held")
	}
	if m.Owner() == 0 {
		t.Fatalf("owner not recorded")
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if m.IsLocked() || m.Owner() != 0 {
		t.Fatalf("mutex not cleared after unlock")
	}
}

func TestLockHandoffAcrossGoroutines(t *testing.T) {
	m := NewMutex()
	m.Lock()
	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()
	waitFor(t, "waiter to queue", m.HasQueuedThreads)
	select {
	case <-acquired:
		t.Fatalf("second locker got in while held")
	case <-time.After(10 * time.Millisecond):
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never acquired after unlock")
	}
}
