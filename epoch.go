package kvcore

import "sync/atomic"

// EpochGC implements spec.md §4.9's epoch-based reclamation: "A reader
// enters an epoch on lock acquisition and exits on release; retired objects
// enqueued during an epoch are freed only once every thread has left it."
// spec.md calls for two collectors (one for snapshot nodes, one for misc
// allocations); this repo has one kind: each Keyspace owns one EpochGC, and
// Database's Executor shares keyspace 0's.
//
// Grounded on gholt-valuestore's channel hand-off between memWriter (a
// value becomes retired/reusable) and memClearer/vfWriter (nothing frees it
// until the pipeline stage that might still reference it has drained) —
// generalized here from a fixed 2-stage pipeline into an arbitrary epoch
// counter so snapshot.go's EndSnapshot can defer a free past any number of
// concurrent lock-free readers.
type EpochGC struct {
	epoch   uint64 // current global epoch, advanced on each lock acquisition
	active  map[uint64]int32
	pending map[uint64][]func()
}

// NewEpochGC constructs an empty collector.
func NewEpochGC() *EpochGC {
	return &EpochGC{active: make(map[uint64]int32), pending: make(map[uint64][]func())}
}

// Enter marks the caller as an active reader in the current epoch and
// returns the epoch token to pass to Exit. Must be called while holding
// whatever lock makes "current epoch" well defined (the global execution
// lock, per spec.md §4.9) or, for lock-free snapshot iterators, atomically
// against Advance via the caller's own synchronization. Enter/Exit do no
// locking of their own, and nothing in this package outside its tests calls
// Enter (snapshot.go's Iterator and Executor.RunAsync do not), so Retire
// currently finds no active reader and runs fn at once.
func (g *EpochGC) Enter() uint64 {
	e := atomic.LoadUint64(&g.epoch)
	g.active[e]++
	return e
}

// Exit leaves the epoch previously returned by Enter, freeing any retired
// objects whose retirement epoch has now fully drained.
func (g *EpochGC) Exit(token uint64) {
	g.active[token]--
	if g.active[token] <= 0 {
		delete(g.active, token)
		g.runPending(token)
	}
}

// Advance moves the global epoch forward, called once per lock acquisition
// in concurrency.go's RunUnderLock and RunAsync.
func (g *EpochGC) Advance() uint64 {
	return atomic.AddUint64(&g.epoch, 1)
}

// Retire schedules fn to run once every reader that entered the current
// epoch has exited; readers still active in an older epoch do not delay it.
// If no reader is currently active in the current epoch, fn runs
// immediately.
func (g *EpochGC) Retire(fn func()) {
	e := atomic.LoadUint64(&g.epoch)
	if g.active[e] <= 0 {
		fn()
		return
	}
	g.pending[e] = append(g.pending[e], fn)
}

func (g *EpochGC) runPending(epoch uint64) {
	fns := g.pending[epoch]
	delete(g.pending, epoch)
	for _, fn := range fns {
		fn()
	}
}
