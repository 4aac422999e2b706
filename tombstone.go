package kvcore

import "github.com/brimshard/kvcore/internal/dict"

// layer is the common shape of the live keyspace and every frozen snapshot
// in its chain: a table of live entries plus a tombstone overlay recording
// keys whose most recent write, while this layer was the live one, was a
// delete rather than a set. On snapshot creation the live keyspace gets a
// new layer whose table starts as a copy of the frozen table's entries and
// whose tombstone overlay starts empty (see CreateSnapshot). Grounded on
// spec.md §3/§4.3/§4.4's "a tombstone overlay used only while a
// snapshot is outstanding" that is "read during snapshot iteration to hide
// post-snapshot changes from older snapshots while exposing them to the
// live view" (see GLOSSARY).
//
// Because a layer's own table is a complete superset of every SET ever
// issued against it (it is literally the live table up until it was
// frozen), a lookup only needs to check the CURRENT layer's table and
// tombstone before falling through to layer.parent — it never needs to
// re-check a grandparent's tombstone directly, since any earlier delete
// that still matters was already folded into every intermediate layer's
// own tombstone overlay at freeze time (see Snapshot.absorb).
type layer struct {
	table      *dict.Dict[*Value]
	tombstones map[string]struct{}
}

func newLayer() *layer {
	return &layer{table: dict.New[*Value](), tombstones: make(map[string]struct{})}
}

// lookupLocal checks only this layer (not its ancestors): tombstoned keys
// report shadowed=true (stop the walk, key is not visible here or below);
// otherwise a table hit returns the value.
func (l *layer) lookupLocal(key string) (v *Value, found bool, shadowed bool) {
	if _, dead := l.tombstones[key]; dead {
		return nil, false, true
	}
	v, found = l.table.Get(key)
	return v, found, false
}

// markDeleted records key as explicitly removed in this layer, so a lookup
// that reaches here stops rather than falling through to an ancestor that
// may still hold the key (spec.md §4.3's write path for DELETE while a
// snapshot is outstanding).
func (l *layer) markDeleted(key string) {
	l.table.Delete(key)
	l.tombstones[key] = struct{}{}
}

// absorb folds a retired layer `old` (the snapshot being ended) into the
// next-newer surviving layer `into` (either the live keyspace layer or the
// next snapshot up the chain), per spec.md §4.4's Ending: "entries that
// were overwritten in the live table are dropped; entries that still match
// the live table's key ... may be returned to the primary pool." Any key
// `into` already has an opinion about (present in its table, or already
// tombstoned) keeps that opinion; everything else carries forward from
// `old` so that layers still older than `old` in the chain (or, for
// iteration purposes, nothing — `old` is being discarded) remain
// reconstructible through `into`.
func (old *layer) absorb(into *layer) {
	old.table.Range(func(key string, v *Value) bool {
		if _, shadowed := into.tombstones[key]; shadowed {
			return true
		}
		if _, present := into.table.Get(key); present {
			return true
		}
		into.table.Set(key, v)
		return true
	})
	for key := range old.tombstones {
		if _, present := into.table.Get(key); present {
			continue
		}
		if _, already := into.tombstones[key]; already {
			continue
		}
		into.tombstones[key] = struct{}{}
	}
}
