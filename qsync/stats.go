package qsync

import "sync/atomic"

// ParkCount tracks park attempts by queued waiters.
var ParkCount int64

// UnparkCount tracks wakeups granted by releases.
var UnparkCount int64

// CancelCount tracks waiters removed by timeout or interrupt.
var CancelCount int64

// ResetStats resets the synchronizer counters.
func ResetStats() {
	atomic.StoreInt64(&ParkCount, 0)
	atomic.StoreInt64(&UnparkCount, 0)
	atomic.StoreInt64(&CancelCount, 0)
}
