package kvcore

import (
	"math/rand"
	"sync"
)

// ExpiryIndex is the per-database expiration sub-index of spec.md §2 C2 /
// §3's Expiry entry / §4.2. Grounded on gholt-valuestore's seq+timestamp
// write bookkeeping (valuesstore.go's memWriter/memClearer track a
// timestamp per write the same way this tracks a whenMs per expiring key),
// generalized from "one timestamp per write" to "one deadline per
// (key[, subkey])".
type ExpiryIndex struct {
	mu      sync.Mutex
	byKey   map[string]int64            // key -> whenMs, for key-level expiries
	bySub   map[string]map[string]int64 // key -> subkey -> whenMs
	keyList []string                    // dense slice for sampling; may contain stale entries, swept lazily
}

func newExpiryIndex() *ExpiryIndex {
	return &ExpiryIndex{
		byKey: make(map[string]int64),
		bySub: make(map[string]map[string]int64),
	}
}

// SetExpire records (or overwrites) an expiration, per spec.md §4.2's
// set_expire(key, [subkey], when_ms).
func (e *ExpiryIndex) SetExpire(key string, subkey *string, whenMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if subkey == nil {
		if _, existed := e.byKey[key]; !existed {
			e.keyList = append(e.keyList, key)
		}
		e.byKey[key] = whenMs
		return
	}
	m, ok := e.bySub[key]
	if !ok {
		m = make(map[string]int64)
		e.bySub[key] = m
		e.keyList = append(e.keyList, key)
	}
	m[*subkey] = whenMs
}

// RemoveExpire implements spec.md §4.2's remove_expire, used by PERSIST and
// by successful fire.
func (e *ExpiryIndex) RemoveExpire(key string, subkey *string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if subkey == nil {
		delete(e.byKey, key)
		return
	}
	if m, ok := e.bySub[key]; ok {
		delete(m, *subkey)
		if len(m) == 0 {
			delete(e.bySub, key)
		}
	}
}

// PeekNextExpiry implements peek_next_expiry(key) for TTL/PTTL commands.
// Returns ok=false if key has no expiration.
func (e *ExpiryIndex) PeekNextExpiry(key string) (whenMs int64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	whenMs, ok = e.byKey[key]
	return
}

// HasAny reports whether key carries any key- or subkey-level expiry; used
// by keyspace.go to decide whether a deleted key needs an expiry-index
// cleanup pass.
func (e *ExpiryIndex) HasAny(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, hasKey := e.byKey[key]
	_, hasSub := e.bySub[key]
	return hasKey || hasSub
}

// SampleCandidates implements spec.md §4.2's sample_candidates(k), drawing
// up to k random keys carrying an expiration.
func (e *ExpiryIndex) SampleCandidates(k int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compactLocked()
	n := len(e.keyList)
	if n == 0 {
		return nil
	}
	if k > n {
		k = n
	}
	out := make([]string, 0, k)
	seen := make(map[int]struct{}, k)
	for len(out) < k {
		i := rand.Intn(n)
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, e.keyList[i])
	}
	return out
}

// compactLocked drops keyList entries for keys that no longer carry any
// expiration (must hold e.mu).
func (e *ExpiryIndex) compactLocked() {
	if len(e.keyList) < 2*(len(e.byKey)+len(e.bySub))+16 {
		return
	}
	fresh := make([]string, 0, len(e.byKey)+len(e.bySub))
	for k := range e.byKey {
		fresh = append(fresh, k)
	}
	for k := range e.bySub {
		if _, ok := e.byKey[k]; !ok {
			fresh = append(fresh, k)
		}
	}
	e.keyList = fresh
}

// SweepMode selects between spec.md §4.2's Fast and Slow sweep algorithms.
type SweepMode int

const (
	SweepFast SweepMode = iota
	SweepSlow
)

// sweepSampleSize and sweepHitFraction are spec.md §4.2's fast/slow sweep
// constants: sample up to 20 keys per iteration (80 in slow mode), stop
// once fewer than 25% are due.
const (
	sweepSampleSize  = 20
	sweepHitFraction = 0.25
)

// FireFunc is called once per key determined due during a sweep; it must
// perform the deletion under the same rules as explicit DELETE (spec.md
// §4.2's firing policy (a)/(b)) — database.go wires this to
// Database.fireExpired.
type FireFunc func(key string, subkey *string)

// FireDue implements spec.md §4.2's fire_due(now_ms, budget): it samples
// and fires due keys until the budget (a max iteration count, standing in
// for the wall-clock/CPU-share budget spec.md describes — the caller
// translates its real budget into an iteration count before calling, since
// this index has no notion of wall-clock itself) is exhausted or one full
// sweep yields too few hits.
//
// role/activeReplica resolve spec.md §9's first Open Question: a non-active
// replica never self-fires: in dryRun it samples as usual but calls fire
// for nothing and returns 0, without reporting which keys were due, because
// replicas receive the deletion from their master instead.
func (e *ExpiryIndex) FireDue(nowMs int64, mode SweepMode, maxIterations int, role Role, activeReplica bool, fire FireFunc) (fired int) {
	dryRun := role == RoleReplica && !activeReplica
	sampleSize := sweepSampleSize
	if mode == SweepSlow {
		sampleSize = sweepSampleSize * 4
	}
	for iter := 0; iter < maxIterations; iter++ {
		candidates := e.SampleCandidates(sampleSize)
		if len(candidates) == 0 {
			return fired
		}
		hits := 0
		for _, key := range candidates {
			due, subkeys := e.dueSubkeys(key, nowMs)
			if !due && len(subkeys) == 0 {
				continue
			}
			hits++
			if dryRun {
				continue
			}
			if due {
				fire(key, nil)
				fired++
				continue
			}
			for i := range subkeys {
				fire(key, &subkeys[i])
				fired++
			}
		}
		if float64(hits)/float64(len(candidates)) < sweepHitFraction {
			return fired
		}
	}
	return fired
}

// dueSubkeys reports whether key itself is due, and which of its subkeys
// (if any) are due, without mutating the index (fire is the caller's job).
func (e *ExpiryIndex) dueSubkeys(key string, nowMs int64) (keyDue bool, subkeys []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if when, ok := e.byKey[key]; ok && when <= nowMs {
		keyDue = true
	}
	if m, ok := e.bySub[key]; ok {
		for sk, when := range m {
			if when <= nowMs {
				subkeys = append(subkeys, sk)
			}
		}
	}
	return
}
