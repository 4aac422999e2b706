package dict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDictSetGetDelete(t *testing.T) {
	d := New[int]()
	d.Set("a", 1)
	v, ok := d.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	require.True(t, d.Delete("a"))
	_, ok = d.Get("a")
	require.False(t, ok)
	require.False(t, d.Delete("a"))
}

func TestDictLenCountsBothTables(t *testing.T) {
	d := New[int]()
	for i := 0; i < 10; i++ {
		d.Set(string(rune('a'+i)), i)
	}
	d.StartRehash(10)
	require.Equal(t, 10, d.Len())
}

func TestDictGetSearchesBothTablesDuringRehash(t *testing.T) {
	d := New[int]()
	d.Set("a", 1)
	d.StartRehash(1)

	v, ok := d.Get("a")
	require.True(t, ok, "an entry still in the old table must be found")
	require.Equal(t, 1, v)
}

func TestDictSetOverwritesOldEntryDuringRehash(t *testing.T) {
	d := New[int]()
	d.Set("a", 1)
	d.StartRehash(1)
	d.Set("a", 2)

	v, ok := d.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)

	// the stale copy in old must not resurface.
	d.mu.Lock()
	_, stillInOld := d.old["a"]
	d.mu.Unlock()
	require.False(t, stillInOld)
}

func TestDictRehashCompletesAfterEnoughSteps(t *testing.T) {
	d := New[int]()
	for i := 0; i < 20; i++ {
		d.Set(string(rune('a'+i)), i)
	}
	d.StartRehash(20)
	require.True(t, d.Rehashing())

	for d.Step(4) {
	}
	require.False(t, d.Rehashing())
	require.Equal(t, 20, d.Len())

	for i := 0; i < 20; i++ {
		v, ok := d.Get(string(rune('a' + i)))
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestDictMutationsMigrateBoundedBatchPerOp(t *testing.T) {
	d := New[int]()
	for i := 0; i < 20; i++ {
		d.Set(string(rune('a'+i)), i)
	}
	d.StartRehash(20)

	d.Set("z", 99)

	d.mu.Lock()
	oldLen := len(d.old)
	d.mu.Unlock()
	require.LessOrEqual(t, oldLen, 20, "migration never grows the old table")
	require.Less(t, oldLen, 20, "a single mutation migrates at least one entry while rehashing")
}

func TestDictStartRehashNoOpWhileAlreadyRehashingOrPaused(t *testing.T) {
	d := New[int]()
	d.Set("a", 1)
	d.StartRehash(1)
	require.True(t, d.Rehashing())

	d.StartRehash(100) // must be a no-op: second call while already rehashing
	for d.Step(4) {
	}
	require.False(t, d.Rehashing())

	d.Set("b", 2)
	d.PauseRehash()
	d.StartRehash(10)
	require.False(t, d.Rehashing(), "StartRehash must no-op while paused")
	d.ResumeRehash()
}

func TestDictPauseRehashBlocksMigration(t *testing.T) {
	d := New[int]()
	for i := 0; i < 10; i++ {
		d.Set(string(rune('a'+i)), i)
	}
	d.StartRehash(10)
	d.PauseRehash()

	d.Set("z", 99)
	require.True(t, d.Rehashing(), "a paused rehash must not make progress on mutation")
	require.True(t, d.Step(4), "Step must report still-rehashing while paused, since migration is a no-op")
}

func TestDictRangeVisitsEachKeyOnceDuringRehash(t *testing.T) {
	d := New[int]()
	for i := 0; i < 10; i++ {
		d.Set(string(rune('a'+i)), i)
	}
	d.StartRehash(10)
	d.Set("a", 100) // migrated into cur, shadowing old's copy

	seen := make(map[string]int)
	d.Range(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	require.Len(t, seen, 10)
	require.Equal(t, 100, seen["a"])
}

func TestDictSnapshotCapturesAllLiveEntries(t *testing.T) {
	d := New[int]()
	for i := 0; i < 10; i++ {
		d.Set(string(rune('a'+i)), i)
	}
	d.StartRehash(10)
	d.Set("a", 100)

	snap := d.Snapshot()
	require.Len(t, snap, 10)
	require.Equal(t, 100, snap["a"])
}
