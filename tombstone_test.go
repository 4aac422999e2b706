package kvcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayerLookupLocalFindsOwnEntry(t *testing.T) {
	l := newLayer()
	l.table.Set("a", NewValue(TypeString, EncRaw, []byte("1")))
	v, found, shadowed := l.lookupLocal("a")
	require.True(t, found)
	require.False(t, shadowed)
	require.Equal(t, []byte("1"), v.payload.([]byte))
}

func TestLayerMarkDeletedShadowsFurtherLookups(t *testing.T) {
	l := newLayer()
	l.table.Set("a", NewValue(TypeString, EncRaw, []byte("1")))
	l.markDeleted("a")

	_, found, shadowed := l.lookupLocal("a")
	require.False(t, found)
	require.True(t, shadowed, "a tombstoned key must stop the lookup walk, not fall through")

	_, stillThere := l.table.Get("a")
	require.False(t, stillThere, "markDeleted removes the key from the layer's own table")
}

func TestLayerLookupLocalMissReportsNeitherFoundNorShadowed(t *testing.T) {
	l := newLayer()
	_, found, shadowed := l.lookupLocal("missing")
	require.False(t, found)
	require.False(t, shadowed)
}

func TestAbsorbCarriesForwardEntriesNotShadowedByNewerLayer(t *testing.T) {
	old := newLayer()
	old.table.Set("a", NewValue(TypeString, EncRaw, []byte("old-a")))
	old.table.Set("b", NewValue(TypeString, EncRaw, []byte("old-b")))

	into := newLayer()
	old.absorb(into)

	v, found := into.table.Get("a")
	require.True(t, found)
	require.Equal(t, []byte("old-a"), v.payload.([]byte))
	_, found = into.table.Get("b")
	require.True(t, found)
}

func TestAbsorbDropsEntriesAlreadyOverwrittenInNewerLayer(t *testing.T) {
	old := newLayer()
	old.table.Set("a", NewValue(TypeString, EncRaw, []byte("old-a")))

	into := newLayer()
	into.table.Set("a", NewValue(TypeString, EncRaw, []byte("new-a")))
	old.absorb(into)

	v, found := into.table.Get("a")
	require.True(t, found)
	require.Equal(t, []byte("new-a"), v.payload.([]byte), "the newer layer's own value wins over the absorbed one")
}

func TestAbsorbDropsEntriesAlreadyTombstonedInNewerLayer(t *testing.T) {
	old := newLayer()
	old.table.Set("a", NewValue(TypeString, EncRaw, []byte("old-a")))

	into := newLayer()
	into.markDeleted("a")
	old.absorb(into)

	_, found := into.table.Get("a")
	require.False(t, found, "a key re-deleted in the newer layer must not be resurrected by absorb")
}

func TestAbsorbCarriesForwardTombstonesNotAlreadyCovered(t *testing.T) {
	old := newLayer()
	old.markDeleted("a")

	into := newLayer()
	old.absorb(into)

	_, tombstoned := into.tombstones["a"]
	require.True(t, tombstoned, "a delete recorded only in the retired layer must survive into the surviving layer")
}

func TestAbsorbTombstoneYieldsToPresentKeyInNewerLayer(t *testing.T) {
	old := newLayer()
	old.markDeleted("a")

	into := newLayer()
	into.table.Set("a", NewValue(TypeString, EncRaw, []byte("new-a")))
	old.absorb(into)

	_, tombstoned := into.tombstones["a"]
	require.False(t, tombstoned, "a key re-written in the newer layer after the old delete must not be re-tombstoned")
	v, found := into.table.Get("a")
	require.True(t, found)
	require.Equal(t, []byte("new-a"), v.payload.([]byte))
}
