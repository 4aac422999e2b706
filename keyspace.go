package kvcore

import "sync"

// Keyspace implements spec.md §3's Keyspace: the live primary table plus the
// chain of outstanding snapshots, the MVCC clock that stamps values while a
// snapshot is live, the expiry sub-index, and the epoch collector that
// defers frees past any lock-free snapshot reader. One Keyspace backs one
// logical database (spec.md §6's Databases count); database.go holds a
// slice of these.
//
// Grounded on gholt-valuestore's ValueStore (valuesstore.go), which is
// itself "one exported, concrete implementation of the ValueStore
// interface" wiring together a locmap, a clock-ish seq, and background
// workers — the same shape, generalized from the teacher's disk-backed
// single map to an in-memory map with a live/snapshot chain.
type Keyspace struct {
	mu sync.Mutex

	live       *layer
	mostRecent *Snapshot // newest outstanding snapshot, nil if none

	clock   *MVCCClock
	expiry  *ExpiryIndex
	epochGC *EpochGC

	// watched records, per key, the readyGen change counter observed at
	// WATCH time (and advanced on each later write of the key), per
	// spec.md §4.7's optimistic-concurrency check for MULTI/EXEC.
	watched map[string]uint64

	// blocked tracks how many callers are parked in BlockOn waiting on key
	// (no command in the dispatch table blocks); a waiter is signaled by
	// bumping readyGen and broadcasting cond.
	blocked  map[string]int
	cond     *sync.Cond
	readyGen uint64
}

// NewKeyspace constructs an empty keyspace.
func NewKeyspace() *Keyspace {
	ks := &Keyspace{
		live:    newLayer(),
		clock:   NewMVCCClock(),
		expiry:  newExpiryIndex(),
		epochGC: NewEpochGC(),
		watched: make(map[string]uint64),
		blocked: make(map[string]int),
	}
	ks.cond = sync.NewCond(&ks.mu)
	return ks
}

// Get implements spec.md §4.3's Lookup against the live view: callers never
// need to consult the snapshot chain for an ordinary read, because live.table
// is always a complete record of the current state (see tombstone.go's layer
// doc comment).
func (ks *Keyspace) Get(key string) (*Value, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.live.table.Get(key)
}

// Set implements spec.md §4.3's write path. It stamps the value with the
// current MVCC timestamp only while a snapshot is outstanding (spec.md §3:
// "timestamps are attached to values only when an ancestor snapshot is
// live"), and clears the key from the live tombstone overlay since it is
// once again present.
func (ks *Keyspace) Set(key string, v *Value) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.mostRecent != nil {
		v.MVCCStamp = ks.clock.Advance()
	}
	delete(ks.live.tombstones, key)
	ks.live.table.Set(key, v)
	ks.bumpReadyLocked(key)
}

// Delete implements spec.md §4.3's delete path: while a snapshot is
// outstanding the key must be tombstoned (markDeleted) so the chain can
// still answer lookups for older snapshots; otherwise a plain table delete
// suffices since nothing below live needs to see the deletion.
func (ks *Keyspace) Delete(key string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	_, existed := ks.live.table.Get(key)
	if !existed {
		return false
	}
	if ks.mostRecent != nil {
		ks.live.markDeleted(key)
	} else {
		ks.live.table.Delete(key)
	}
	if ks.expiry.HasAny(key) {
		ks.expiry.RemoveExpire(key, nil)
	}
	ks.bumpReadyLocked(key)
	return true
}

// Len reports the number of live keys, used by DBSIZE.
func (ks *Keyspace) Len() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.live.table.Len()
}

// Range iterates the live view; f returning false stops iteration early.
func (ks *Keyspace) Range(f func(key string, v *Value) bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.live.table.Range(f)
}

// Watch records the current generation for key, per spec.md §4.7's WATCH.
// The generation is the keyspace's readyGen change counter, which every
// Set/Delete advances, so two Watch/Changed pairs straddling a write to key
// disagree.
func (ks *Keyspace) Watch(key string) uint64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.watched[key] = ks.readyGen
	return ks.readyGen
}

// Changed reports whether key has been written or deleted since the
// matching Watch call, per spec.md §4.7's EXEC precheck; on a change,
// Dispatcher.execMulti returns a nil result without running the queue.
func (ks *Keyspace) Changed(key string, since uint64) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.watched[key] != since
}

// Unwatch drops key's WATCH bookkeeping, called on UNWATCH/EXEC/DISCARD.
func (ks *Keyspace) Unwatch(key string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.watched, key)
}

// bumpReadyLocked advances the per-key change generation and wakes any
// blocked waiters; must hold ks.mu.
func (ks *Keyspace) bumpReadyLocked(key string) {
	ks.readyGen++
	if _, has := ks.watched[key]; has {
		ks.watched[key] = ks.readyGen
	}
	if ks.blocked[key] > 0 {
		ks.cond.Broadcast()
	}
}

// BlockOn parks the caller until a Set/Delete of key or a WakeAll wakes it;
// it has no timeout. No command in the dispatch table calls it. Callers
// loop: BlockOn returns when *something* changed
// about key, and the caller must itself re-check whether its precondition
// (e.g. list now non-empty) now holds.
func (ks *Keyspace) BlockOn(key string) {
	ks.mu.Lock()
	ks.blocked[key]++
	ks.cond.Wait()
	ks.blocked[key]--
	if ks.blocked[key] <= 0 {
		delete(ks.blocked, key)
	}
	ks.mu.Unlock()
}

// WakeAll broadcasts to every blocked waiter; used by Database.Close to
// unstick blocked callers on shutdown.
func (ks *Keyspace) WakeAll() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.cond.Broadcast()
}

// StepRehash forwards a bounded incremental-rehash budget to the live
// table's dict, per spec.md §4.8's cron tick work item. No-op against any
// frozen snapshot table, since only the live table ever rehashes.
func (ks *Keyspace) StepRehash(n int) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.live.table.Step(n)
}

// MaybeStartRehash begins an incremental rehash of the live table if its
// load factor warrants it and no snapshot currently pins it, per spec.md
// §4.3's "Rehash is paused while a snapshot references the primary table."
func (ks *Keyspace) MaybeStartRehash(loadFactorHint int) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.mostRecent != nil {
		return
	}
	ks.live.table.StartRehash(loadFactorHint)
}

// Expiry exposes the keyspace's expiry sub-index to database.go/cron.go.
func (ks *Keyspace) Expiry() *ExpiryIndex { return ks.expiry }

// EpochGC exposes the collector to database.go so it can be shared with
// the Database's Executor.
func (ks *Keyspace) EpochGC() *EpochGC { return ks.epochGC }

// Clock exposes the MVCC clock for callers (e.g. CreateSnapshot's hint
// argument) that need to read the current high-water timestamp.
func (ks *Keyspace) Clock() *MVCCClock { return ks.clock }

// Get implements a snapshot-scoped lookup, walking from s toward older
// ancestors: a tombstone at any layer on the way stops the walk (the key
// was deleted as of that layer's freeze time), a table hit returns the
// value, and falling off the end of the chain (s.parent == nil) without a
// hit means the key never existed as of s's timestamp.
func (s *Snapshot) Get(key string) (*Value, bool) {
	for l := s; l != nil; l = l.parent {
		v, found, shadowed := l.layer.lookupLocal(key)
		if shadowed {
			return nil, false
		}
		if found {
			return v, true
		}
	}
	return nil, false
}
