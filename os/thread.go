package os

import (
	"runtime"
	"strconv"
	"strings"
)

// ThreadID identifies a goroutine.
type ThreadID uint64

// ThreadEq compares thread ids for equality.
func ThreadEq(a, b ThreadID) bool {
	return a == b
}

// ThreadPF converts a thread id to a numeric value.
func ThreadPF(id ThreadID) uint64 {
	return uint64(id)
}

// ThreadGetCurrID returns the current goroutine id.
func ThreadGetCurrID() ThreadID {
	return ThreadID(curGoroutineID())
}

// ThreadYield yields the processor.
func ThreadYield() {
	runtime.Gosched()
}

func curGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	if n <= 0 {
		return 0
	}
	// Stack header: "goroutine 123 ["
	fields := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))
	if len(fields) == 0 {
		return 0
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
