package kvcore

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Database is the top-level object SPEC_FULL.md's package layout names: it
// owns the N logical Keyspaces (§3's "Each of N logical databases"), the
// command Executor, the Cron loop, and the optional secondary-store
// Bridge. cmd/kvcored constructs exactly one of these per process.
//
// Grounded on gholt-valuestore's ValueStore as the top-level object a
// process constructs once and wires its background workers against
// (valuesstore.go's NewValueStore); this generalizes that single-store
// shape to spec.md §3's "N logical databases" by holding a slice of
// Keyspace rather than one primary map.
type Database struct {
	mu sync.Mutex

	keyspaces []*Keyspace
	executor  *Executor
	cron      *Cron
	bridge    *Bridge
	evictor   *EvictionController
	cfg       *Config
	log       *Logger
	stats     *Stats

	role           Role
	activeReplica  bool
	clusterEnabled bool

	usedMemory int64 // approximate, refreshed by refreshMemoryStats

	// The fields below back spec.md's explicitly out-of-scope
	// collaborators (network framing, replication transport, cluster
	// routing, TLS, AOF) which this package only stubs hooks for, per
	// spec.md §1: "Out of scope (external collaborators, interfaces
	// only): network framing and RESP protocol parsing; the replication
	// stream transport; RDB/AOF file-format details ...; cluster slot
	// routing; scripting; pub/sub; sentinel/HA mode; TLS; module ABI;
	// CLI and config parsing." Cron still calls these hook points on
	// schedule so the control-flow shape matches §4.8 exactly; a real
	// deployment supplies non-nil hooks wiring them to the actual
	// collaborator.
	clientTimeoutHook   func()
	unblockedDrainHook  func()
	forkInProgressHook  func() bool
	instantMetricsHook  func()
	clusterCronHook     func()
	migrateTimeoutHook  func()
	replicationCronHook func()
	tlsReloadHook       func()
	aofRetryHook        func()
	cpuOverloadHook     func() bool
	shedClientHook      func()
	lockTuneHook        func()
}

// NewDatabase constructs a Database with cfg.Databases logical keyspaces,
// an Executor/Cron pair, and (if cfg.StorageMemoryModel != none) a Bridge
// wrapping provider.
func NewDatabase(cfg *Config, provider SecondaryStore, log *Logger) *Database {
	keyspaces := make([]*Keyspace, cfg.Databases)
	for i := range keyspaces {
		keyspaces[i] = NewKeyspace()
	}
	epochGC := keyspaces[0].EpochGC()

	db := &Database{
		keyspaces: keyspaces,
		executor:  NewExecutor(epochGC),
		evictor:   NewEvictionController(cfg),
		cfg:       cfg,
		log:       log,
		stats:     NewStats(),
		role:      RoleMaster,
	}
	if provider != nil && cfg.StorageMemoryModel != StorageModelNone {
		mode := BridgeWriteThrough
		if cfg.StorageMemoryModel == StorageModelWriteBack {
			mode = BridgeWriteBack
		}
		db.bridge = NewBridge(provider, mode, cfg.StorageFlushPeriod, log)
	}
	db.cron = NewCron(db, cfg)
	return db
}

// Keyspace returns the logical database at index i, panicking like a slice
// index would if i is out of range.
func (db *Database) Keyspace(i int) *Keyspace { return db.keyspaces[i] }

// Start launches the cron loop; Close stops it and wakes any blocked
// clients so they can observe shutdown.
func (db *Database) Start() { db.cron.Start() }

func (db *Database) Close() {
	db.cron.Stop()
	for _, ks := range db.keyspaces {
		ks.WakeAll()
	}
}

// fireExpired is the ExpiryIndex.FireFunc wired by cron.go: it deletes the
// key (or subkey) through the normal keyspace delete path so tombstoning
// under an outstanding snapshot still applies, per spec.md §4.2's firing
// policy and §4.6's "Evictions during active snapshots route the deletion
// through the tombstone overlay."
func (db *Database) fireExpired(dbIndex int, key string, subkey *string) {
	ks := db.keyspaces[dbIndex]
	if subkey == nil {
		ks.Delete(key)
		db.stats.IncrExpiredKeys()
		if db.bridge != nil {
			db.bridge.RecordDelete(key)
		}
		return
	}
	v, ok := ks.Get(key)
	if !ok {
		return
	}
	expireSubkey(v, *subkey)
	ks.Expiry().RemoveExpire(key, subkey)
}

// LookupWithReadThrough implements spec.md §4.5's "Read-through on miss":
// an ordinary Get first; on miss, if a bridge is configured, the provider
// is consulted and a hit materializes into the keyspace.
func (db *Database) LookupWithReadThrough(dbIndex int, key string) (*Value, bool) {
	ks := db.keyspaces[dbIndex]
	if v, ok := ks.Get(key); ok {
		return v, true
	}
	if db.bridge == nil {
		return nil, false
	}
	return db.bridge.ReadThrough(ks, key, decodeValueFromStore)
}

// runEvictionTopUp refills dbIndex's eviction pool ahead of need, per
// spec.md §4.6's "(b) periodically from cron."
func (db *Database) runEvictionTopUp(dbIndex int) {
	if db.evictor.policy == PolicyNoEviction {
		return
	}
	ks := db.keyspaces[dbIndex]
	src := &candidateSource{ks: ks, expiry: ks.Expiry()}
	db.evictor.refill(src, evictionClock())
}

// EvictForMemory implements spec.md §4.6's "(a) before accepting any
// command marked 'may consume memory' when maxmemory is configured,"
// invoked by executor.go's pre-execution checks.
func (db *Database) EvictForMemory(dbIndex int) error {
	if db.cfg.MaxMemory <= 0 {
		return nil
	}
	ks := db.keyspaces[dbIndex]
	src := &candidateSource{ks: ks, expiry: ks.Expiry()}
	return db.evictor.RunPressureLoop(src, evictionClock(), db.cfg.MaxMemory, db.UsedMemory, func(key string) {
		if v, ok := ks.Get(key); ok {
			db.mu.Lock()
			db.usedMemory -= v.EstimatedSize()
			db.mu.Unlock()
		}
		ks.Delete(key)
		db.stats.IncrEvictedKeys()
		if db.bridge != nil {
			db.bridge.RecordDelete(key)
		}
	})
}

// UsedMemory returns the last-sampled approximate memory footprint across
// all keyspaces.
func (db *Database) UsedMemory() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.usedMemory
}

// refreshMemoryStats recomputes usedMemory by summing EstimatedSize over
// every live value, per spec.md §4.8's "100 ms: ... memory stats refresh."
// A full walk every 100ms is the simple, correct baseline; a production
// port would maintain a running counter updated incrementally on Set/
// Delete instead of re-summing.
func (db *Database) refreshMemoryStats() {
	var total int64
	for _, ks := range db.keyspaces {
		ks.Range(func(_ string, v *Value) bool {
			total += v.EstimatedSize()
			return true
		})
	}
	db.mu.Lock()
	db.usedMemory = total
	db.mu.Unlock()
}

func evictionClock() uint32 { return uint32(time.Now().Unix()) }

// flushToSecondaryStore serializes entries against the immutable snapshot
// (never the live view) per spec.md §4.5's write-back worker contract, and
// marks the provider's write batch boundaries.
func (db *Database) flushToSecondaryStore(snap *Snapshot, entries map[string]changeEntry) {
	if db.bridge == nil {
		return
	}
	if err := db.bridge.provider.BeginWriteBatch(); err != nil {
		db.log.Warn("flush: begin write batch failed")
		return
	}
	for key, ce := range entries {
		if ce.update == nil {
			db.bridge.provider.Erase(key)
			continue
		}
		v, ok := snap.Get(key)
		if !ok {
			continue
		}
		framed := encodeFrame(v, 0, false, encodeValueForStore(v))
		db.bridge.provider.Insert(key, framed, true)
	}
	db.bridge.provider.EndWriteBatch()
}

// The hook methods below are thin, nil-checked delegations to the
// out-of-scope collaborators named in spec.md §1. The *Hook fields are
// unexported: only code in this package (its tests) sets them, and
// cmd/kvcored sets none, so there every hook is a no-op.

func (db *Database) sweepClientTimeouts() {
	if db.clientTimeoutHook != nil {
		db.clientTimeoutHook()
	}
}
func (db *Database) drainUnblocked() {
	if db.unblockedDrainHook != nil {
		db.unblockedDrainHook()
	}
}
func (db *Database) forkInProgress() bool {
	if db.forkInProgressHook != nil {
		return db.forkInProgressHook()
	}
	return false
}
func (db *Database) sampleInstantaneousMetrics() {
	if db.instantMetricsHook != nil {
		db.instantMetricsHook()
	}
}
func (db *Database) clusterCron() {
	if db.clusterCronHook != nil {
		db.clusterCronHook()
	}
}
func (db *Database) migrateSocketTimeoutCheck() {
	if db.migrateTimeoutHook != nil {
		db.migrateTimeoutHook()
	}
}
func (db *Database) replicationCron() {
	if db.replicationCronHook != nil {
		db.replicationCronHook()
	}
}
func (db *Database) tlsCertReloadCheck() {
	if db.tlsReloadHook != nil {
		db.tlsReloadHook()
	}
}
func (db *Database) aofErrorRetry() {
	if db.aofRetryHook != nil {
		db.aofRetryHook()
	}
}
func (db *Database) logVerboseKeyspaceInfo() {
	for i, ks := range db.keyspaces {
		db.log.Debug("keyspace info", zap.Int("db", i), zap.Int("keys", ks.Len()))
	}
}
func (db *Database) cpuOverloaded() bool {
	if db.cpuOverloadHook != nil {
		return db.cpuOverloadHook()
	}
	return false
}
func (db *Database) shedOneClient() {
	if db.shedClientHook != nil {
		db.shedClientHook()
	}
}
func (db *Database) autoTuneLockContention() {
	if db.lockTuneHook != nil {
		db.lockTuneHook()
	}
}
