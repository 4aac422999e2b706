package kvcore

import (
	"sync/atomic"
	"time"
)

// Snapshot is the frozen logical view of spec.md §3/§4.4. It chains toward
// older ancestors via parent and keeps a child back-pointer so EndSnapshot
// can splice itself out of the middle of the chain in O(1) (see
// tombstone.go's absorb).
type Snapshot struct {
	*layer
	db        *Keyspace
	tSnap     uint64
	refcount  int32
	parent    *Snapshot
	child     *Snapshot // nil if this is the newest snapshot
	createdAt time.Time
}

// TSnap returns the MVCC checkpoint this snapshot was created at.
func (s *Snapshot) TSnap() uint64 { return s.tSnap }

// Stale implements spec.md §4.4's staleness rule: a snapshot older than a
// configurable wall-clock budget (default 500ms) is marked stale.
func (s *Snapshot) Stale(budget time.Duration) bool {
	return time.Since(s.createdAt) > budget
}

// CreateSnapshot implements spec.md §4.4's create_snapshot. If a compatible
// snapshot already exists at a timestamp >= hint, its refcount is bumped
// and it is returned (snapshot sharing) rather than allocating a new node.
func (ks *Keyspace) CreateSnapshot(hint uint64, optional bool) *Snapshot {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.mostRecent != nil && ks.mostRecent.tSnap >= hint {
		atomic.AddInt32(&ks.mostRecent.refcount, 1)
		return ks.mostRecent
	}
	if optional && ks.live.table.Rehashing() {
		// Creation would force the in-flight incremental rehash on the
		// about-to-be-frozen table to settle before the hand-off is
		// clean; an optional caller degrades instead of paying that cost
		// (spec.md §4.4's "If optional=true and creation would force a
		// costly full rehash pause, returns nil").
		return nil
	}
	tSnap := ks.clock.Advance()
	if tSnap < hint {
		tSnap = hint
	}
	snap := &Snapshot{
		layer:     ks.live,
		db:        ks,
		tSnap:     tSnap,
		refcount:  1,
		parent:    ks.mostRecent,
		createdAt: time.Now(),
	}
	if ks.mostRecent != nil {
		ks.mostRecent.child = snap
	}
	ks.mostRecent = snap
	// The new live layer starts with every entry of the layer just frozen,
	// so the live view stays complete while the snapshot is outstanding.
	fresh := newLayer()
	for k, v := range ks.live.table.Snapshot() {
		fresh.table.Set(k, v)
	}
	ks.live = fresh
	return snap
}

// EndSnapshot implements spec.md §4.4's end_snapshot: refcount--; at zero,
// the snapshot is handed to the epoch GC, which defers the physical
// splice-and-merge until every reader active in the current epoch has
// exited (see EpochGC.Retire; readers still in an older epoch do not delay
// it).
func (ks *Keyspace) EndSnapshot(s *Snapshot) {
	if atomic.AddInt32(&s.refcount, -1) > 0 {
		return
	}
	ks.epochGC.Retire(func() {
		ks.mu.Lock()
		defer ks.mu.Unlock()
		ks.spliceOut(s)
	})
}

// spliceOut removes s from the chain and merges its entries into whichever
// layer is now its immediate newer neighbor (s.child, or ks.live if s was
// the most recent snapshot), per spec.md §4.4's merge/discard rule.
// Must hold ks.mu.
func (ks *Keyspace) spliceOut(s *Snapshot) {
	var newer *layer
	if s.child != nil {
		s.child.parent = s.parent
		newer = s.child.layer
	} else {
		ks.mostRecent = s.parent
		newer = ks.live
	}
	if s.parent != nil {
		s.parent.child = s.child
	}
	s.layer.absorb(newer)
	if ks.mostRecent == nil {
		// No ancestor left to shadow; the live tombstone overlay no
		// longer serves a purpose (spec.md §4.3: overwrite/delete "may
		// skip stamping" once no snapshot exists).
		ks.live.tombstones = make(map[string]struct{})
	}
}

// Iterator yields (key, value_borrow) pairs from a snapshot's own frozen
// table, per spec.md §4.4's Iteration: "A snapshot-threadsafe iterator
// reads from the frozen table ... Iterators yield (key, value_borrow)
// pairs; the borrow is valid until end_snapshot." Because each layer's
// table holds the whole keyspace as of its freeze (a live layer starts as a
// copy of the layer frozen before it, see CreateSnapshot), ranging over
// s.layer.table alone
// already satisfies P6 without consulting ancestors or descendants.
type Iterator struct {
	entries map[string]*Value
	keys    []string
	pos     int
}

// Iterate returns an iterator over s. The returned values are borrows
// (IsBorrowed()==true) and must not be mutated or retained past
// EndSnapshot(s).
func (s *Snapshot) Iterate() *Iterator {
	snap := s.layer.table.Snapshot()
	keys := make([]string, 0, len(snap))
	borrowed := make(map[string]*Value, len(snap))
	for k, v := range snap {
		if _, dead := s.tombstones[k]; dead {
			continue
		}
		bv := *v
		bv.refcount = borrowedSentinel
		keys = append(keys, k)
		borrowed[k] = &bv
	}
	return &Iterator{entries: borrowed, keys: keys}
}

// Next advances the iterator; ok is false once exhausted.
func (it *Iterator) Next() (key string, value *Value, ok bool) {
	if it.pos >= len(it.keys) {
		return "", nil, false
	}
	key = it.keys[it.pos]
	value = it.entries[key]
	it.pos++
	return key, value, true
}
