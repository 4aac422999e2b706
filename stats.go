package kvcore

import "sync/atomic"

// Stats implements SPEC_FULL.md's [EXPANSION] runtime-counters component:
// the subset of INFO-style counters this repo's cmdInfo and tests consult.
// Grounded on gholt-valuestore's Stats()/StatsLogBackground machinery
// (valuesstore.go exposes a periodic human-readable stats dump); this
// generalizes that into a small set of atomic counters any component can
// bump without taking the global execution lock.
type Stats struct {
	commandsProcessed int64
	expiredKeys       int64
	evictedKeys       int64
	keyspaceHits      int64
	keyspaceMisses    int64
}

// NewStats returns a zeroed counter set.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) IncrCommandsProcessed() { atomic.AddInt64(&s.commandsProcessed, 1) }
func (s *Stats) IncrExpiredKeys()       { atomic.AddInt64(&s.expiredKeys, 1) }
func (s *Stats) IncrEvictedKeys()       { atomic.AddInt64(&s.evictedKeys, 1) }
func (s *Stats) IncrKeyspaceHit()       { atomic.AddInt64(&s.keyspaceHits, 1) }
func (s *Stats) IncrKeyspaceMiss()      { atomic.AddInt64(&s.keyspaceMisses, 1) }

// Snapshot returns a point-in-time copy of every counter, suitable for
// merging into cmdInfo's reply map.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"total_commands_processed": atomic.LoadInt64(&s.commandsProcessed),
		"expired_keys":             atomic.LoadInt64(&s.expiredKeys),
		"evicted_keys":             atomic.LoadInt64(&s.evictedKeys),
		"keyspace_hits":            atomic.LoadInt64(&s.keyspaceHits),
		"keyspace_misses":          atomic.LoadInt64(&s.keyspaceMisses),
	}
}
