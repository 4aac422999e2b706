package kvcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newEvictionTestSource(t *testing.T) (*Keyspace, *candidateSource) {
	t.Helper()
	ks := NewKeyspace()
	return ks, &candidateSource{ks: ks, expiry: ks.Expiry()}
}

func TestEvictionInScopeVolatileRequiresTTL(t *testing.T) {
	ks, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyVolatileLRU}
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	require.False(t, ec.inScope(src, "k"))
	ks.Expiry().SetExpire("k", nil, 1<<62)
	require.True(t, ec.inScope(src, "k"))
}

func TestEvictionInScopeAllKeysAlwaysEligible(t *testing.T) {
	_, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyAllKeysLRU}
	require.True(t, ec.inScope(src, "anything"))
}

func TestEvictionInScopeNoEvictionNeverEligible(t *testing.T) {
	_, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyNoEviction}
	require.False(t, ec.inScope(src, "anything"))
}

func TestEvictionRankLRUPrefersOlderIdle(t *testing.T) {
	_, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyAllKeysLRU}
	recent := NewValue(TypeString, EncRaw, []byte("v"))
	recent.Touch(PolicyAllKeysLRU, 100, false)
	stale := NewValue(TypeString, EncRaw, []byte("v"))
	stale.Touch(PolicyAllKeysLRU, 10, false)
	clock := uint32(200)
	require.Greater(t, ec.rank(src, "stale", stale, clock), ec.rank(src, "recent", recent, clock))
}

func TestEvictionRankLFUPrefersLowerFrequency(t *testing.T) {
	_, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyAllKeysLFU}
	cold := NewValue(TypeString, EncRaw, []byte("v"))
	hot := NewValue(TypeString, EncRaw, []byte("v"))
	hot.lruLfu = uint32(lfuField(200, 0))
	cold.lruLfu = uint32(lfuField(1, 0))
	require.Greater(t, ec.rank(src, "cold", cold, 0), ec.rank(src, "hot", hot, 0))
}

func TestEvictOneRefillsWhenPoolEmpty(t *testing.T) {
	ks, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyAllKeysRandom, samples: 5, poolSize: 4, tenacity: 10}
	ks.Set("a", NewValue(TypeString, EncRaw, []byte("v")))
	ks.Set("b", NewValue(TypeString, EncRaw, []byte("v")))

	evicted := map[string]bool{}
	key, ok := ec.EvictOne(src, 0, func(k string) { ks.Delete(k); evicted[k] = true })
	require.True(t, ok)
	require.True(t, evicted[key])
}

func TestEvictOneSkipsAlreadyGoneKey(t *testing.T) {
	ks, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyAllKeysRandom, samples: 5, poolSize: 4, tenacity: 10}
	ks.Set("a", NewValue(TypeString, EncRaw, []byte("v")))
	ec.refill(src, 0)
	ks.Delete("a") // pool now references a key that is no longer present
	ks.Set("b", NewValue(TypeString, EncRaw, []byte("v")))
	ec.refill(src, 0)

	_, ok := ec.EvictOne(src, 0, func(k string) { ks.Delete(k) })
	require.True(t, ok)
}

func TestRunPressureLoopStopsUnderMaxMemory(t *testing.T) {
	ks, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyAllKeysRandom, samples: 5, poolSize: 4, tenacity: 10}
	for i := 0; i < 10; i++ {
		ks.Set(string(rune('a'+i)), NewValue(TypeString, EncRaw, make([]byte, 100)))
	}
	used := int64(10)
	usedMemory := func() int64 { return used }
	err := ec.RunPressureLoop(src, 0, 5, usedMemory, func(k string) {
		ks.Delete(k)
		used--
	})
	require.NoError(t, err)
	require.LessOrEqual(t, used, int64(5))
}

func TestRunPressureLoopReturnsOOMWhenNoProgress(t *testing.T) {
	ks, src := newEvictionTestSource(t)
	ec := &EvictionController{policy: PolicyNoEviction, samples: 5, poolSize: 4, tenacity: 2}
	used := int64(100)
	err := ec.RunPressureLoop(src, 0, 1, func() int64 { return used }, func(string) {})
	require.ErrorIs(t, err, ErrOOM)
	_ = ks
}
