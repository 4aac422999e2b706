package kvcore

import (
	"container/heap"
	"math/rand"
)

// EvictionController implements spec.md §4.6 (C6): policy-ranked sampling
// into a bounded pool, and the maxmemory pressure loop.
//
// Grounded on gholt-valuestore's TombstoneDiscardState machinery
// (valuestore_GEN_.go's discard-pass sampling of candidates under a
// configurable "interval"/"age" pair) generalized from "tombstones older
// than X" to spec.md's full policy matrix (LRU/LFU/TTL/random, volatile vs
// allkeys), and from a single fixed pass to a refillable ranked pool.
type EvictionController struct {
	policy   EvictionPolicy
	samples  int // S, default 5
	poolSize int
	tenacity int // 1..100

	pool evictionPool
}

// NewEvictionController builds a controller from Config.
func NewEvictionController(cfg *Config) *EvictionController {
	return &EvictionController{
		policy:   cfg.MaxMemoryPolicy,
		samples:  cfg.MaxMemorySamples,
		poolSize: cfg.EvictionPoolSize,
		tenacity: cfg.EvictionTenacity,
	}
}

// candidateSource is how the controller discovers in-scope keys without
// importing database.go (avoiding a cyclic concern): it is handed the
// current keyspace plus expiry index by the caller (database.go) each time
// sampling is needed.
type candidateSource struct {
	ks     *Keyspace
	expiry *ExpiryIndex
}

// evictionPoolEntry ranks one candidate key by the policy's chosen metric;
// higher rank sorts first for eviction, per spec.md §4.6's "Evict from the
// head of the pool."
type evictionPoolEntry struct {
	key  string
	rank float64 // higher = evict sooner
}

// evictionPool is a max-heap on rank, bounded to poolSize entries, per
// spec.md §4.6's "insert into the eviction pool keyed by ranking; repeat
// until the pool is full."
type evictionPool []evictionPoolEntry

func (p evictionPool) Len() int            { return len(p) }
func (p evictionPool) Less(i, j int) bool  { return p[i].rank > p[j].rank }
func (p evictionPool) Swap(i, j int)       { p[i], p[j] = p[j], p[i] }
func (p *evictionPool) Push(x interface{}) { *p = append(*p, x.(evictionPoolEntry)) }
func (p *evictionPool) Pop() interface{} {
	old := *p
	n := len(old)
	item := old[n-1]
	*p = old[:n-1]
	return item
}

// inScope reports whether key is eligible under the controller's policy
// (volatile-* policies only consider keys carrying a TTL, per spec.md
// §4.6's Policy matrix).
func (e *EvictionController) inScope(src *candidateSource, key string) bool {
	switch e.policy {
	case PolicyVolatileLRU, PolicyVolatileLFU, PolicyVolatileTTL, PolicyVolatileRandom:
		return src.expiry.HasAny(key)
	case PolicyAllKeysLRU, PolicyAllKeysLFU, PolicyAllKeysRandom:
		return true
	default: // noeviction
		return false
	}
}

// rank computes the eviction-priority metric for key under the
// controller's active policy.
func (e *EvictionController) rank(src *candidateSource, key string, v *Value, clock uint32) float64 {
	switch e.policy {
	case PolicyVolatileLRU, PolicyAllKeysLRU:
		lf := lruLfuField(v.lruLfu)
		idle := int64(clock) - int64(lf.lruClock())
		return float64(idle)
	case PolicyVolatileLFU, PolicyAllKeysLFU:
		lf := lruLfuField(v.lruLfu)
		return -float64(lf.lfuFreq()) // lower frequency -> higher rank
	case PolicyVolatileTTL:
		when, ok := src.expiry.PeekNextExpiry(key)
		if !ok {
			return -1 // no TTL observed yet, lowest priority
		}
		return -float64(when) // nearer expiration -> higher rank
	default: // *-random
		return rand.Float64()
	}
}

// refill draws up to e.samples random candidates and inserts them into the
// pool, discarding the lowest-ranked entries beyond poolSize, per spec.md
// §4.6's "Sampling."
func (e *EvictionController) refill(src *candidateSource, clock uint32) {
	if e.policy == PolicyNoEviction {
		return
	}
	keys := src.expiry.SampleCandidates(e.samples)
	if e.policy == PolicyAllKeysLRU || e.policy == PolicyAllKeysLFU || e.policy == PolicyAllKeysRandom {
		keys = sampleAllKeys(src.ks, e.samples)
	}
	for _, k := range keys {
		if !e.inScope(src, k) {
			continue
		}
		v, ok := src.ks.Get(k)
		if !ok {
			continue
		}
		heap.Push(&e.pool, evictionPoolEntry{key: k, rank: e.rank(src, k, v, clock)})
	}
	for e.pool.Len() > e.poolSize {
		// drop lowest-ranked: pop everything, keep top poolSize
		tmp := make(evictionPool, e.pool.Len())
		copy(tmp, e.pool)
		heap.Init(&tmp)
		kept := evictionPool{}
		for i := 0; i < e.poolSize && tmp.Len() > 0; i++ {
			kept = append(kept, heap.Pop(&tmp).(evictionPoolEntry))
		}
		e.pool = kept
		heap.Init(&e.pool)
		break
	}
}

// sampleAllKeys draws n pseudo-random keys from the full live keyspace;
// used by allkeys-* policies which aren't restricted to expiry.HasAny.
func sampleAllKeys(ks *Keyspace, n int) []string {
	out := make([]string, 0, n)
	ks.Range(func(key string, _ *Value) bool {
		if len(out) >= n*4 {
			return false
		}
		out = append(out, key)
		return true
	})
	if len(out) <= n {
		return out
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:n]
}

// EvictOne implements one iteration of spec.md §4.6's pressure loop: evict
// the pool's head; if the pool is empty, refill first. Returns ok=false if
// no candidate could be produced (the caller should then raise OOM).
func (e *EvictionController) EvictOne(src *candidateSource, clock uint32, onEvict func(key string)) (evicted string, ok bool) {
	if e.pool.Len() == 0 {
		e.refill(src, clock)
	}
	if e.pool.Len() == 0 {
		return "", false
	}
	top := heap.Pop(&e.pool).(evictionPoolEntry)
	if _, stillPresent := src.ks.Get(top.key); !stillPresent {
		return e.EvictOne(src, clock, onEvict)
	}
	onEvict(top.key)
	return top.key, true
}

// RunPressureLoop implements spec.md §4.6's "While used_memory > maxmemory
// AND pool nonempty: evict head; ... A tenacity parameter (1..100) caps the
// number of consecutive no-progress iterations." usedMemory is re-evaluated
// by the caller after each onEvict (it may shrink used_memory as a side
// effect); this function calls usedMemory() fresh each iteration.
func (e *EvictionController) RunPressureLoop(src *candidateSource, clock uint32, maxMemory int64, usedMemory func() int64, onEvict func(key string)) error {
	noProgress := 0
	for usedMemory() > maxMemory {
		_, ok := e.EvictOne(src, clock, onEvict)
		if !ok {
			e.refill(src, clock)
			if e.pool.Len() == 0 {
				noProgress++
				if noProgress >= e.tenacity {
					return ErrOOM
				}
				continue
			}
			noProgress = 0
			continue
		}
		noProgress = 0
	}
	return nil
}
