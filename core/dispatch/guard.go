package dispatch

import "sync/atomic"

// Guard coordinates exactly one concurrent dispatch cycle. Trigger signals
// arriving while a cycle runs are dropped, not queued: the next poll tick
// re-discovers any order still new, so coalescing keeps latency low without
// losing work.
type Guard struct {
	running atomic.Bool
}

// TryAcquire returns true when the caller now owns the run slot. It is safe
// under concurrent calls from the poller and external trigger sources.
func (g *Guard) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release frees the run slot. Callers release in a defer so a failed cycle
// never wedges future ones.
func (g *Guard) Release() {
	g.running.Store(false)
}
