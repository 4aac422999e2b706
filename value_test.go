package kvcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryEncodeStringClassifies(t *testing.T) {
	enc, _ := TryEncodeString([]byte("12345"))
	require.Equal(t, EncInlineInt, enc)

	enc, _ = TryEncodeString([]byte("hello world"))
	require.Equal(t, EncEmbstr, enc)

	long := make([]byte, 45)
	for i := range long {
		long[i] = 'x'
	}
	enc, _ = TryEncodeString(long)
	require.Equal(t, EncRaw, enc)
}

func TestValueDupIsIndependent(t *testing.T) {
	v := NewValue(TypeString, EncRaw, []byte("original"))
	dup := v.Dup()
	dup.payload = append([]byte{}, []byte("changed")...)
	require.True(t, Equal(v, NewValue(TypeString, EncRaw, []byte("original"))))
	require.False(t, Equal(v, dup))
}

func TestValueEqual(t *testing.T) {
	a := NewValue(TypeString, EncRaw, []byte("abc"))
	b := NewValue(TypeString, EncRaw, []byte("abc"))
	c := NewValue(TypeString, EncRaw, []byte("xyz"))
	require.True(t, Equal(a, b))
	require.False(t, Equal(a, c))
	require.True(t, Equal(nil, nil))
	require.False(t, Equal(a, nil))
}

func TestShareIfEligibleSharesSmallInts(t *testing.T) {
	v := NewValue(TypeString, EncInlineInt, []byte("42"))
	shared := ShareIfEligible(v, false)
	require.True(t, shared.IsShared())
	require.Same(t, sharedIntegers[42], shared)

	notShared := ShareIfEligible(v, true)
	require.False(t, notShared.IsShared())
}

func TestShareIfEligibleRefusesNonIntString(t *testing.T) {
	v := NewValue(TypeString, EncEmbstr, []byte("hello"))
	out := ShareIfEligible(v, false)
	require.Same(t, v, out)
}

func TestTouchLRUUpdatesClockField(t *testing.T) {
	v := NewValue(TypeString, EncRaw, []byte("x"))
	v.Touch(PolicyAllKeysLRU, 1234, false)
	require.Equal(t, uint32(1234), lruLfuField(v.lruLfu).lruClock())
}

func TestTouchNoTouchSkipsUpdate(t *testing.T) {
	v := NewValue(TypeString, EncRaw, []byte("x"))
	v.Touch(PolicyAllKeysLRU, 1234, true)
	require.Equal(t, uint32(0), lruLfuField(v.lruLfu).lruClock())
}

// TestLFUIncrementEventuallyReachesCeiling exercises the logarithmic
// counter's probabilistic increment across many accesses: frequency must
// stay non-decreasing and must end at the uint8 ceiling of 255.
func TestLFUIncrementEventuallyReachesCeiling(t *testing.T) {
	v := NewValue(TypeString, EncRaw, []byte("x"))
	lf := lruLfuField(v.lruLfu)
	require.Equal(t, uint8(0), lf.lfuFreq())
	for clock := uint32(0); clock < 200000; clock++ {
		last := lruLfuField(v.lruLfu).lfuFreq()
		v.lfuIncrement(clock)
		next := lruLfuField(v.lruLfu).lfuFreq()
		require.GreaterOrEqual(t, next, last)
	}
	require.Equal(t, uint8(255), lruLfuField(v.lruLfu).lfuFreq())
}

func TestLFUDecayReducesFrequency(t *testing.T) {
	v := NewValue(TypeString, EncRaw, []byte("x"))
	v.lruLfu = uint32(lfuField(10, 0))
	v.LFUDecay(60, 1) // 60 elapsed minutes, 1 minute per decay period
	require.Less(t, lruLfuField(v.lruLfu).lfuFreq(), uint8(10))
}

func TestEstimatedSizeGrowsWithPayload(t *testing.T) {
	small := NewValue(TypeString, EncRaw, []byte("a"))
	big := NewValue(TypeString, EncRaw, make([]byte, 1000))
	require.Greater(t, big.EstimatedSize(), small.EstimatedSize())
}
