package kvcore

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListPushPopOrdering(t *testing.T) {
	d, _, client := newTestDispatcher()
	require.Equal(t, int64(1), dispatchOK(t, d, client, "RPUSH", "l", "a"))
	require.Equal(t, int64(2), dispatchOK(t, d, client, "RPUSH", "l", "b"))
	require.Equal(t, int64(3), dispatchOK(t, d, client, "LPUSH", "l", "z"))

	require.Equal(t, []string{"z", "a", "b"}, dispatchOK(t, d, client, "LRANGE", "l", "0", "-1"))
	require.Equal(t, "z", dispatchOK(t, d, client, "LPOP", "l"))
	require.Equal(t, "b", dispatchOK(t, d, client, "RPOP", "l"))
	require.Equal(t, int64(1), dispatchOK(t, d, client, "LLEN", "l"))
}

func TestListPopEmptiesAndDeletesKey(t *testing.T) {
	d, db, client := newTestDispatcher()
	dispatchOK(t, d, client, "RPUSH", "l", "only")
	dispatchOK(t, d, client, "LPOP", "l")
	_, ok := db.Keyspace(0).Get("l")
	require.False(t, ok, "emptied list key must be deleted")
}

func TestListLIndexNegativeAndOutOfRange(t *testing.T) {
	d, _, client := newTestDispatcher()
	dispatchOK(t, d, client, "RPUSH", "l", "a", "b", "c")
	require.Equal(t, "c", dispatchOK(t, d, client, "LINDEX", "l", "-1"))
	require.Nil(t, dispatchOK(t, d, client, "LINDEX", "l", "99"))
}

func TestListLRangeOnMissingKeyReturnsEmpty(t *testing.T) {
	d, _, client := newTestDispatcher()
	require.Equal(t, []string{}, dispatchOK(t, d, client, "LRANGE", "missing", "0", "-1"))
}

func TestListPromotesToLinkedAcrossSegmentBoundary(t *testing.T) {
	d, db, client := newTestDispatcher()
	segSize := DefaultEncodingThresholds().ListSegmentSize
	argv := []string{"RPUSH", "l"}
	for i := 0; i < segSize+1; i++ {
		argv = append(argv, strconv.Itoa(i))
	}
	_, err := d.Dispatch(client, argv)
	require.NoError(t, err)

	v, ok := db.Keyspace(0).Get("l")
	require.True(t, ok)
	require.Equal(t, EncLinkedList, v.Encoding)
}

func TestListOpOnWrongTypeErrors(t *testing.T) {
	d, db, client := newTestDispatcher()
	db.Keyspace(0).Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	_, err := d.Dispatch(client, []string{"LPUSH", "k", "x"})
	require.Error(t, err)
}
