package kvcore

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSetGetDel(t *testing.T) {
	d, _, client := newTestDispatcher()
	require.Equal(t, int64(2), dispatchOK(t, d, client, "HSET", "h", "f1", "v1", "f2", "v2"))
	require.Equal(t, "v1", dispatchOK(t, d, client, "HGET", "h", "f1"))
	require.Equal(t, int64(1), dispatchOK(t, d, client, "HEXISTS", "h", "f1"))
	require.Equal(t, int64(2), dispatchOK(t, d, client, "HLEN", "h"))

	require.Equal(t, int64(1), dispatchOK(t, d, client, "HDEL", "h", "f1"))
	require.Equal(t, int64(0), dispatchOK(t, d, client, "HEXISTS", "h", "f1"))
}

func TestHashSetOddArityErrors(t *testing.T) {
	d, _, client := newTestDispatcher()
	_, err := d.Dispatch(client, []string{"HSET", "h", "f1"})
	require.ErrorIs(t, err, ErrWrongArity)
}

func TestHashDelEmptiesAndDeletesKey(t *testing.T) {
	d, db, client := newTestDispatcher()
	dispatchOK(t, d, client, "HSET", "h", "f1", "v1")
	dispatchOK(t, d, client, "HDEL", "h", "f1")
	_, ok := db.Keyspace(0).Get("h")
	require.False(t, ok)
}

func TestHashGetAll(t *testing.T) {
	d, _, client := newTestDispatcher()
	dispatchOK(t, d, client, "HSET", "h", "f1", "v1", "f2", "v2")
	got := dispatchOK(t, d, client, "HGETALL", "h").(map[string]string)
	require.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, got)
}

func TestHashPromotesToHashtableBeyondThreshold(t *testing.T) {
	d, db, client := newTestDispatcher()
	th := DefaultEncodingThresholds()
	argv := []string{"HSET", "h"}
	for i := 0; i < th.MaxPackedEntries+1; i++ {
		argv = append(argv, "f"+strconv.Itoa(i), "v")
	}
	_, err := d.Dispatch(client, argv)
	require.NoError(t, err)

	v, ok := db.Keyspace(0).Get("h")
	require.True(t, ok)
	require.Equal(t, EncHashtable, v.Encoding)
}

func TestHashOpOnWrongTypeErrors(t *testing.T) {
	d, db, client := newTestDispatcher()
	db.Keyspace(0).Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	_, err := d.Dispatch(client, []string{"HSET", "k", "f", "v"})
	require.Error(t, err)
}
