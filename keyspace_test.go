package kvcore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyspaceSetGetDelete(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	v, ok := ks.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v.payload.([]byte))

	require.True(t, ks.Delete("k"))
	require.False(t, ks.Delete("k"), "deleting an already-absent key reports false")
	_, ok = ks.Get("k")
	require.False(t, ok)
}

// TestMVCCStampOnlyWhileSnapshotOutstanding exercises spec.md §3's rule that
// a value's MVCC stamp is only assigned while an ancestor snapshot exists.
func TestMVCCStampOnlyWhileSnapshotOutstanding(t *testing.T) {
	ks := NewKeyspace()
	v1 := NewValue(TypeString, EncRaw, []byte("a"))
	ks.Set("k", v1)
	require.Equal(t, uint64(0), v1.MVCCStamp)

	snap := ks.CreateSnapshot(0, false)
	v2 := NewValue(TypeString, EncRaw, []byte("b"))
	ks.Set("k", v2)
	require.NotZero(t, v2.MVCCStamp)

	ks.EndSnapshot(snap)
}

func TestWatchChangedDetectsIntermediateWrite(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	gen := ks.Watch("k")
	require.False(t, ks.Changed("k", gen))

	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v2")))
	require.True(t, ks.Changed("k", gen))
}

func TestWatchChangedDetectsDelete(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	gen := ks.Watch("k")
	ks.Delete("k")
	require.True(t, ks.Changed("k", gen))
}

func TestUnwatchForgetsKey(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	gen := ks.Watch("k")
	ks.Unwatch("k")
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v2")))
	// watched[k] no longer tracked, so Changed reads the zero value and
	// simply disagrees with whatever gen used to be once bumped elsewhere.
	require.True(t, ks.Changed("k", gen) || gen == 0)
}

func TestDeleteUnderOutstandingSnapshotTombstones(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	snap := ks.CreateSnapshot(0, false)

	require.True(t, ks.Delete("k"))
	_, dead := ks.live.tombstones["k"]
	require.True(t, dead, "delete while a snapshot is outstanding must tombstone rather than bare-delete")

	ks.EndSnapshot(snap)
}

func TestRangeVisitsAllLiveKeys(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("a", NewValue(TypeString, EncRaw, []byte("1")))
	ks.Set("b", NewValue(TypeString, EncRaw, []byte("2")))
	seen := map[string]bool{}
	ks.Range(func(k string, _ *Value) bool {
		seen[k] = true
		return true
	})
	require.True(t, seen["a"])
	require.True(t, seen["b"])
	require.Equal(t, 2, ks.Len())
}

func TestStepRehashDrainsIncrementally(t *testing.T) {
	ks := NewKeyspace()
	for i := 0; i < 50; i++ {
		ks.Set(fmt.Sprintf("key-%d", i), NewValue(TypeString, EncRaw, []byte("v")))
	}
	ks.MaybeStartRehash(64)
	require.True(t, ks.live.table.Rehashing())
	for ks.StepRehash(8) {
	}
	require.False(t, ks.live.table.Rehashing())
}

func TestMaybeStartRehashNoOpWhileSnapshotOutstanding(t *testing.T) {
	ks := NewKeyspace()
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	snap := ks.CreateSnapshot(0, false)
	ks.MaybeStartRehash(16)
	require.False(t, ks.live.table.Rehashing())
	ks.EndSnapshot(snap)
}

func TestBlockOnWakesOnBumpReady(t *testing.T) {
	ks := NewKeyspace()
	done := make(chan struct{})
	go func() {
		ks.BlockOn("k")
		close(done)
	}()
	// give the goroutine a chance to park before we bump readiness
	for {
		ks.mu.Lock()
		waiting := ks.blocked["k"] > 0
		ks.mu.Unlock()
		if waiting {
			break
		}
	}
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	<-done
}
