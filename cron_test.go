package kvcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCronTickGatesPeriodicWork reproduces spec.md §4.8's period table: at
// hz=10 (tickMs=100), every100ms-tagged work fires every tick, while
// every1s/every5s/every30s-tagged work only fires once their period elapses.
func TestCronTickGatesPeriodicWork(t *testing.T) {
	db := newTestDatabase()
	db.cfg.Hz = 10
	c := NewCron(db, db.cfg)

	metricsCount := 0
	db.instantMetricsHook = func() { metricsCount++ }
	replCount := 0
	db.replicationCronHook = func() { replCount++ }
	verboseCount := 0
	db.clientTimeoutHook = func() {}
	db.unblockedDrainHook = func() {}
	_ = verboseCount

	// simulate 1.2 seconds of ticks at 100ms each (spec.md §4.8's table)
	for i := 0; i < 12; i++ {
		c.elapsedMs += c.tickMs()
		c.tick()
	}
	require.Equal(t, 12, metricsCount, "every100ms work must fire every tick at hz=10")
	require.GreaterOrEqual(t, replCount, 1, "every1s work must fire at least once over 1.2s")
}

func TestCronEveryTickSweepsExpiredKeys(t *testing.T) {
	db := newTestDatabase()
	c := NewCron(db, db.cfg)
	ks := db.Keyspace(0)
	ks.Set("k", NewValue(TypeString, EncRaw, []byte("v")))
	ks.Expiry().SetExpire("k", nil, 1) // already in the past

	c.everyTick()
	_, ok := ks.Get("k")
	require.False(t, ok, "an expired key must be swept by the fast-mode sweep")
}

// TestFlushBridgeFollowsConfiguredPeriod reproduces spec.md §4.5's "periodic
// task (default frequency from config)": flushBridge must fire on the cadence
// named by Config.StorageFlushPeriod, not a cadence hard-coded in cron.go.
func TestFlushBridgeFollowsConfiguredPeriod(t *testing.T) {
	db := newTestDatabase()
	db.cfg.Hz = 10
	db.cfg.StorageFlushPeriod = 200 * time.Millisecond
	db.bridge = NewBridge(NewMemProvider(), BridgeWriteBack, db.cfg.StorageFlushPeriod, NewNopLogger())
	c := NewCron(db, db.cfg)
	require.Equal(t, int64(200), c.flushPeriodMs)

	ks := db.Keyspace(0)
	v := NewValue(TypeString, EncRaw, []byte("v"))
	ks.Set("k", v)
	db.bridge.RecordWrite("k", v)

	providerHas := func() bool {
		var found bool
		require.NoError(t, db.bridge.provider.Retrieve("k", func(_ []byte, ok bool) { found = ok }))
		return found
	}

	// one tick at 100ms must not yet cross the 200ms flush period.
	c.elapsedMs += c.tickMs()
	c.tick()
	require.False(t, providerHas(), "flush must not run before its configured period elapses")

	// the second tick crosses the 200ms boundary.
	c.elapsedMs += c.tickMs()
	c.tick()
	require.Eventually(t, providerHas, time.Second, time.Millisecond, "flush must run once its configured period elapses")
}

// TestFlushBridgeNoOpWithoutBridge guards flushBridge's nil-bridge path.
func TestFlushBridgeNoOpWithoutBridge(t *testing.T) {
	db := newTestDatabase()
	c := NewCron(db, db.cfg)
	require.NotPanics(t, func() { c.flushBridge() })
}

func TestCronStartStop(t *testing.T) {
	db := newTestDatabase()
	db.cfg.Hz = 50
	c := NewCron(db, db.cfg)
	c.Start()
	c.Stop() // must return once the loop goroutine has exited
}
