package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhaosoft1982/qsync-go/lock"
	"github.com/zhaosoft1982/qsync-go/qsync"
)

var defaultScenarios = []string{
	"mutex",
	"trylock",
	"latch",
	"cond",
}

func main() {
	threadsFlag := flag.Int("threads", 8, "Concurrent goroutines per scenario")
	itersFlag := flag.Int("iters", 10000, "Iterations per goroutine")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "Per-scenario deadline")
	scenariosFlag := flag.String("scenarios", "", "Comma-separated scenarios to run")
	flag.Parse()

	scenarios := defaultScenarios
	if *scenariosFlag != "" {
		scenarios = strings.Split(*scenariosFlag, ",")
	}

	failed := 0
	for _, name := range scenarios {
		qsync.ResetStats()
		start := time.Now()
		err := runScenario(name, *threadsFlag, *itersFlag, *timeoutFlag)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %-8s %v: %v\n", name, elapsed, err)
			continue
		}
		fmt.Printf("ok   %-8s %v parks=%d unparks=%d cancels=%d\n",
			name, elapsed, qsync.ParkCount, qsync.UnparkCount, qsync.CancelCount)
	}
	if failed > 0 {
		exitErr("scenarios failed", fmt.Errorf("%d of %d", failed, len(scenarios)))
	}
}

func runScenario(name string, threads, iters int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	switch name {
	case "mutex":
		return stressMutex(ctx, threads, iters)
	case "trylock":
		return stressTryLock(ctx, threads, iters)
	case "latch":
		return stressLatch(ctx, threads)
	case "cond":
		return stressCond(ctx, threads, iters)
	}
	return fmt.Errorf("unknown scenario %q", name)
}

// stressMutex hammers Lock/Unlock and checks mutual exclusion through
// an unsynchronized counter.
func stressMutex(ctx context.Context, threads, iters int) error {
	m := lock.NewMutex()
	counter := 0
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		g.Go(func() error {
			for j := 0; j < iters; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				m.Lock()
				counter++
				if err := m.Unlock(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if want := threads * iters; counter != want {
		return fmt.Errorf("counter=%d want %d", counter, want)
	}
	if m.IsLocked() || m.HasQueuedThreads() {
		return fmt.Errorf("mutex not quiescent after drain")
	}
	return nil
}

// stressTryLock mixes barging TryLock callers with timed waiters.
func stressTryLock(ctx context.Context, threads, iters int) error {
	m := lock.NewMutex()
	counter := 0
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		timed := i%2 == 0
		g.Go(func() error {
			for j := 0; j < iters; j++ {
				var got bool
				var err error
				if timed {
					got, err = m.TryLockTimeout(ctx, time.Second)
					if err != nil {
						return err
					}
				} else {
					got = m.TryLock()
				}
				if !got {
					continue
				}
				counter++
				if err = m.Unlock(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if counter == 0 {
		return fmt.Errorf("no acquisition succeeded")
	}
	if m.IsLocked() {
		return fmt.Errorf("mutex left locked")
	}
	return nil
}

// stressLatch blocks a crowd on an unsignalled latch, opens it, and
// checks everyone drains plus a late arrival passes straight through.
func stressLatch(ctx context.Context, threads int) error {
	l := lock.NewLatch()
	// the group context dies once Wait returns; the late-arrival check
	// below must run on the outer context
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		g.Go(func() error {
			return l.Await(gctx)
		})
	}
	time.Sleep(10 * time.Millisecond)
	l.Signal()
	if err := g.Wait(); err != nil {
		return err
	}
	if !l.IsSignalled() {
		return fmt.Errorf("latch not signalled after Signal")
	}
	return l.Await(ctx)
}

// stressCond runs a producer/consumer handoff over a single slot.
func stressCond(ctx context.Context, threads, iters int) error {
	m := lock.NewMutex()
	notEmpty := m.NewCond()
	notFull := m.NewCond()
	full := false
	produced, consumed := 0, 0
	total := threads * iters

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		g.Go(func() error {
			for j := 0; j < iters; j++ {
				m.Lock()
				for full {
					if err := notFull.Await(ctx); err != nil {
						m.Unlock()
						return err
					}
				}
				full = true
				produced++
				if err := notEmpty.Signal(); err != nil {
					m.Unlock()
					return err
				}
				if err := m.Unlock(); err != nil {
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			for j := 0; j < iters; j++ {
				m.Lock()
				for !full {
					if err := notEmpty.Await(ctx); err != nil {
						m.Unlock()
						return err
					}
				}
				full = false
				consumed++
				if err := notFull.Signal(); err != nil {
					m.Unlock()
					return err
				}
				if err := m.Unlock(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if produced != total || consumed != total {
		return fmt.Errorf("produced=%d consumed=%d want %d", produced, consumed, total)
	}
	return nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "qstress: %s: %v\n", msg, err)
	os.Exit(1)
}
