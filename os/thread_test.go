package os

import "testing"

func TestThreadGetCurrID(t *testing.T) {
	id := ThreadGetCurrID()
	if id == 0 {
		t.Fatalf("expected nonzero goroutine id")
	}
	if !ThreadEq(id, ThreadGetCurrID()) {
		t.Fatalf("id changed within one goroutine")
	}
	other := make(chan ThreadID, 1)
	go func() {
		other <- ThreadGetCurrID()
	}()
	if got := <-other; ThreadEq(id, got) {
		t.Fatalf("distinct goroutines share id %d", ThreadPF(got))
	}
}
