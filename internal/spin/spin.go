// Package spin provides a minimal test-and-set spinlock.
//
// The lock is a busy-wait primitive with acquire/release ordering, suitable
// for the short critical sections of the allocator layers. It has no notion
// of cancellation or timeout: acquisition either succeeds immediately or
// spins until the holder releases.
package spin

import (
	"runtime"
	"sync/atomic"
)

// Lock is a test-and-set spinlock. The zero value is unlocked.
//
// Lock contains no pointers, so it may be embedded in structures that live
// outside the Go heap.
type Lock struct {
	state atomic.Uint32
}

// Acquire spins until the lock is held by the caller.
func (l *Lock) Acquire() {
	for {
		if l.state.CompareAndSwap(0, 1) {
			return
		}
		// Back off while the lock is observed held to keep the
		// compare-and-swap off the bus.
		for l.state.Load() != 0 {
			runtime.Gosched()
		}
	}
}

// TryAcquire attempts to take the lock without spinning and reports whether
// it succeeded.
func (l *Lock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release unlocks the lock. It must only be called by the current holder.
func (l *Lock) Release() {
	l.state.Store(0)
}
