package engine

import (
	"runtime"
	"sync/atomic"
)

// spinlock is a non-blocking mutual-exclusion primitive built directly on
// sync/atomic compare-and-swap (see DESIGN.md). The engine's {status,
// latency counters} need a lock whose critical sections never suspend
// the calling goroutine, so the real-time audio thread can never be
// descheduled while holding it. A blocking sync.Mutex does not give
// that guarantee.
type spinlock struct {
	state atomic.Int32
}

const (
	spinUnlocked int32 = 0
	spinLocked   int32 = 1
)

// lock spins until the lock is acquired. Critical sections guarded by a
// spinlock must be bounded to a handful of stores; never perform I/O,
// allocation, or anything else that can block while holding it.
func (s *spinlock) lock() {
	for !s.state.CompareAndSwap(spinUnlocked, spinLocked) {
		runtime.Gosched()
	}
}

func (s *spinlock) unlock() {
	s.state.Store(spinUnlocked)
}
