// Package sync provides synchronization primitives that work before any
// scheduler exists.
package sync

import (
	"phoenix/kernel/cpu"
	"sync/atomic"
)

// attemptsBeforeYielding is the number of failed acquisition attempts after
// which Acquire calls yieldFn (if set) instead of just relaxing the core.
const attemptsBeforeYielding = 64

var (
	// relaxFn is called between acquisition attempts.
	relaxFn = cpu.Yield

	// TODO: replace with real yield function when context-switching is implemented.
	yieldFn func()
)

// Spinlock implements a lock where each core trying to acquire it busy-waits
// till the lock becomes available. There is no timeout; critical sections
// are expected to be short and always complete.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active core.
// Any attempt to re-acquire a lock already held by the current core will
// cause a deadlock.
func (l *Spinlock) Acquire() {
	for attempt := uint32(1); !atomic.CompareAndSwapUint32(&l.state, 0, 1); attempt++ {
		if attempt%attemptsBeforeYielding == 0 && yieldFn != nil {
			yieldFn()
			continue
		}
		relaxFn()
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other cores to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// Held returns true if some core currently holds the lock.
func (l *Spinlock) Held() bool {
	return atomic.LoadUint32(&l.state) != 0
}
