package kvcore

import (
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZSetAddScoreCard(t *testing.T) {
	d, _, client := newTestDispatcher()
	require.Equal(t, int64(2), dispatchOK(t, d, client, "ZADD", "z", "1", "a", "2", "b"))
	require.Equal(t, "1", dispatchOK(t, d, client, "ZSCORE", "z", "a"))
	require.Equal(t, int64(2), dispatchOK(t, d, client, "ZCARD", "z"))
}

func TestZSetAddOddArityErrors(t *testing.T) {
	d, _, client := newTestDispatcher()
	_, err := d.Dispatch(client, []string{"ZADD", "z", "1", "a", "2"})
	require.ErrorIs(t, err, ErrWrongArity)
}

func TestZSetRangeByScore(t *testing.T) {
	d, _, client := newTestDispatcher()
	dispatchOK(t, d, client, "ZADD", "z", "1", "a", "2", "b", "3", "c")
	out := dispatchOK(t, d, client, "ZRANGEBYSCORE", "z", "2", "3").([]string)
	sort.Strings(out)
	require.Equal(t, []string{"b", "c"}, out)
}

func TestZSetRemEmptiesAndDeletesKey(t *testing.T) {
	d, db, client := newTestDispatcher()
	dispatchOK(t, d, client, "ZADD", "z", "1", "only")
	dispatchOK(t, d, client, "ZREM", "z", "only")
	_, ok := db.Keyspace(0).Get("z")
	require.False(t, ok)
}

func TestZSetPromotesToSkiplistBeyondThreshold(t *testing.T) {
	d, db, client := newTestDispatcher()
	th := DefaultEncodingThresholds()
	argv := []string{"ZADD", "z"}
	for i := 0; i < th.MaxPackedEntries+1; i++ {
		argv = append(argv, strconv.Itoa(i), "m"+strconv.Itoa(i))
	}
	_, err := d.Dispatch(client, argv)
	require.NoError(t, err)

	v, ok := db.Keyspace(0).Get("z")
	require.True(t, ok)
	require.Equal(t, EncSkiplist, v.Encoding)
}

func TestZSetOpOnWrongTypeErrors(t *testing.T) {
	d, db, client := newTestDispatcher()
	db.Keyspace(0).Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	_, err := d.Dispatch(client, []string{"ZADD", "k", "1", "m"})
	require.Error(t, err)
}
