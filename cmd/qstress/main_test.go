package main

import (
	"testing"
	"time"
)

func TestDefaultScenariosPass(t *testing.T) {
	for _, name := range defaultScenarios {
		name := name
		t.Run(name, func(t *testing.T) {
			if err := runScenario(name, 4, 200, 10*time.Second); err != nil {
				t.Fatalf("scenario %s: %v", name, err)
			}
		})
	}
}

func TestLatchScenarioLateArrival(t *testing.T) {
	// the latch scenario ends with an await after the worker group has
	// drained; it must pass on its own, repeatedly
	for i := 0; i < 3; i++ {
		if err := runScenario("latch", 3, 1, 10*time.Second); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}

func TestUnknownScenario(t *testing.T) {
	if err := runScenario("bogus", 1, 1, time.Second); err == nil {
		t.Fatalf("expected error for unknown scenario")
	}
}
