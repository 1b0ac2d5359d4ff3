package qsync

import (
	"sync/atomic"

	"github.com/zhaosoft1982/qsync-go/os"
)

type mode int32

const (
	modeExclusive mode = iota
	modeShared
)

// Wait-node statuses. A node starts at statusInitial; a release moves
// it to statusSignalled (or statusPropagate for a shared wakeup chain),
// cancellation moves it to statusCancelled, and condition waiters sit
// at statusCondition until transferred. statusDequeued marks a node
// that has acquired and become the queue sentinel, so a stale release
// scan cannot spend a wakeup on it.
const (
	statusInitial int32 = iota
	statusSignalled
	statusPropagate
	statusCancelled
	statusCondition
	statusDequeued
)

// node represents one blocked goroutine in the wait queue. The prev
// link is set before the tail CAS publishes the node; the next link is
// a best-effort forward hint and may lag.
type node struct {
	mode   mode
	status atomic.Int32
	prev   atomic.Pointer[node]
	next   atomic.Pointer[node]
	parker *os.Parker
	thread os.ThreadID

	// nextWaiter links condition waiters; guarded by the exclusive hold.
	nextWaiter *node
}

func newNode(m mode) *node {
	return &node{mode: m, parker: os.NewParker(), thread: os.ThreadGetCurrID()}
}

// cancel tries to move the node to statusCancelled. It reports false
// when a concurrent grant won the status race; the caller must consume
// that wakeup before trying again.
func (n *node) cancel() bool {
	for {
		switch st := n.status.Load(); st {
		case statusCancelled:
			return true
		case statusInitial:
			if n.status.CompareAndSwap(statusInitial, statusCancelled) {
				return true
			}
		default:
			return false
		}
	}
}

// resetGrant clears a consumed wakeup so the node is eligible for the
// next release scan.
func (n *node) resetGrant() {
	n.status.CompareAndSwap(statusSignalled, statusInitial)
	n.status.CompareAndSwap(statusPropagate, statusInitial)
}
