package kvcore

import (
	"strings"

	"go.uber.org/zap"
)

// CommandFlags is the flag-set bitmask from spec.md §4.7.
type CommandFlags uint32

const (
	FlagWrite CommandFlags = 1 << iota
	FlagReadOnly
	FlagDenyOOM
	FlagAdmin
	FlagPubSub
	FlagNoScript
	FlagRandom
	FlagOKLoading
	FlagOKStale
	FlagNoMonitor
	FlagNoSlowlog
	FlagFast
	FlagMayReplicate
	FlagClusterAsking
	FlagNoAuth
	FlagAsyncSafe
)

// ACLCategory tags a command for an ACL engine's key/command pattern
// matching; spec.md §4.7 requires the tag to exist even without a full ACL
// subsystem wired in (SPEC_FULL.md §4.11).
type ACLCategory string

const (
	ACLString    ACLCategory = "string"
	ACLList      ACLCategory = "list"
	ACLHash      ACLCategory = "hash"
	ACLSet       ACLCategory = "set"
	ACLSortedSet ACLCategory = "sortedset"
	ACLKeyspace  ACLCategory = "keyspace"
	ACLTxn       ACLCategory = "transaction"
	ACLAdmin     ACLCategory = "admin"
)

// KeySpec describes which arguments of a command name keys, for the
// key-extraction descriptor spec.md §4.7 requires in every dispatch entry.
// firstKey/lastKey are 1-based argv indices; lastKey=-1 means "to the end";
// step is the stride between keys (1 for most commands).
type KeySpec struct {
	FirstKey int
	LastKey  int
	Step     int
}

// noKeys is the KeySpec for commands that name no key (MULTI, DISCARD, ...).
var noKeys = KeySpec{FirstKey: 0, LastKey: 0, Step: 0}
var firstArgKey = KeySpec{FirstKey: 1, LastKey: 1, Step: 1}

// HandlerFunc executes one command against ctx and returns a reply value
// (a Go value standing in for the RESP reply the out-of-scope protocol
// layer would encode, per spec.md §1) or an *Error.
type HandlerFunc func(ctx *CommandContext, argv []string) (interface{}, error)

// CommandEntry is one dispatch-table row, per spec.md §4.7: "(name,
// handler, arity (exact N or ≥N encoded as negative), flag-set,
// key-extraction descriptor)".
type CommandEntry struct {
	Name    string
	Handler HandlerFunc
	Arity   int // exact N, or -N meaning "at least N"
	Flags   CommandFlags
	Keys    KeySpec
	ACL     ACLCategory
}

func (c *CommandEntry) arityOK(argc int) bool {
	if c.Arity >= 0 {
		return argc == c.Arity
	}
	return argc >= -c.Arity
}

// CommandContext is the per-call state a handler needs: which logical
// database, the owning Executor/Database, and (for MULTI/EXEC) whether
// this call is itself running inside a transaction body.
type CommandContext struct {
	DB       *Database
	DBIndex  int
	Client   *ClientState
	inExec   bool
}

// ClientState is the minimal per-connection state spec.md §4.7/§4.9 name:
// MULTI buffering, WATCH set, and blocked status. cmd/kvcored creates one
// with NewClientState for its single stdin session; this repo only models
// the fields the engine itself reads.
type ClientState struct {
	DBIndex int

	multiOpen bool
	multiDirty bool
	queued     []queuedCommand
	watching   map[string]watchEntry // key -> (dbIndex, generation at WATCH time)

	Blocked   bool
	Scripting bool
	Authenticated bool
	NoAuthBit     bool // true if server requires no auth at all
}

type queuedCommand struct {
	name string
	argv []string
}

type watchEntry struct {
	dbIndex int
	gen     uint64
}

// NewClientState returns a fresh per-connection state.
func NewClientState() *ClientState {
	return &ClientState{watching: make(map[string]watchEntry), Authenticated: true}
}

// Dispatcher holds the command table and the Executor/Database it runs
// against. One Dispatcher per Database.
//
// Grounded on gholt-valuestore's msg.go dispatch table (a name->handler map
// keyed by a wire opcode byte, "MsgHandler" func type) generalized from a
// fixed replication-message set to spec.md §4.7's full pre-execution-check
// pipeline and MULTI/EXEC buffering.
type Dispatcher struct {
	table map[string]*CommandEntry
	db    *Database
	ex    *Executor
}

// NewDispatcher builds the command table described in SPEC_FULL.md §4.11
// (populated by registerStringCommands/registerListCommands/... in the
// commands_*.go files) bound to db.
func NewDispatcher(db *Database) *Dispatcher {
	d := &Dispatcher{table: make(map[string]*CommandEntry), db: db, ex: db.executor}
	registerStringCommands(d)
	registerListCommands(d)
	registerHashCommands(d)
	registerSetCommands(d)
	registerZSetCommands(d)
	registerGenericCommands(d)
	return d
}

func (d *Dispatcher) register(e *CommandEntry) {
	d.table[strings.ToUpper(e.Name)] = e
}

// Dispatch implements spec.md §4.7's full pipeline: the pre-execution
// checks (arity, auth, ACL stand-ins, memory policy) in order, then MULTI
// buffering if the client has one open, then execution under the global
// lock (or the async path for eligible commands).
//
// Checks 1,5,8,10,11,12,13,14 of spec.md §4.7's 14-item list name
// collaborators out of this repo's scope (module filters, cluster slot
// ownership, min-replicas, pub/sub context, stale-replica, loading,
// script-timeout, client-pause); they are represented as permissive no-ops
// so the ordering itself — the thing spec.md actually specifies — is
// faithfully reproduced and testable.
func (d *Dispatcher) Dispatch(client *ClientState, argv []string) (interface{}, error) {
	if len(argv) == 0 {
		return nil, ErrSyntax
	}
	name := strings.ToUpper(argv[0])
	entry, ok := d.table[name]
	if !ok {
		if client.multiOpen {
			client.multiDirty = true
		}
		return nil, newErr(ProtocolError, "ERR", "unknown command '%s'", argv[0])
	}
	d.db.stats.IncrCommandsProcessed()
	// (2) arity
	if !entry.arityOK(len(argv)) {
		if client.multiOpen {
			client.multiDirty = true
		}
		return nil, ErrWrongArity
	}
	// (3) authentication requirement vs command's no-auth bit
	if !client.Authenticated && entry.Flags&FlagNoAuth == 0 && !client.NoAuthBit {
		return nil, ErrNoAuth
	}
	// (4) ACL: permissive no-op ACL engine (SPEC_FULL.md §4.11) — every
	// command passes; the category tag exists so a real ACL engine can be
	// dropped in without reshaping the table.
	_ = entry.ACL
	// (6) memory policy if write + denyoom
	if entry.Flags&FlagWrite != 0 && entry.Flags&FlagDenyOOM != 0 {
		if err := d.db.EvictForMemory(client.DBIndex); err != nil {
			return nil, err
		}
	}
	// (9) read-only replica restriction
	if entry.Flags&FlagWrite != 0 && d.db.role == RoleReplica && !d.db.activeReplica {
		return nil, ErrReadOnly
	}

	switch name {
	case "MULTI":
		return d.beginMulti(client)
	case "EXEC":
		return d.execMulti(client)
	case "DISCARD":
		return d.discardMulti(client)
	case "WATCH":
		return d.watch(client, argv[1:])
	case "UNWATCH":
		return d.unwatch(client)
	}

	if client.multiOpen {
		client.queued = append(client.queued, queuedCommand{name: name, argv: argv})
		return "QUEUED", nil
	}

	return d.runOne(client, entry, argv)
}

// runOne executes entry synchronously under the global execution lock,
// taking the async path instead when eligible (spec.md §4.9's Async path).
// In write-through mode a write command's staged bridge entries are
// committed before runOne returns; an InternalError is logged at WARNING.
func (d *Dispatcher) runOne(client *ClientState, entry *CommandEntry, argv []string) (result interface{}, err error) {
	if d.ex.AsyncEligible(entry.Flags, client.Blocked) {
		d.ex.RunAsync(d.db.keyspaces[client.DBIndex], func(snap *Snapshot) {
			ctx := &CommandContext{DB: d.db, DBIndex: client.DBIndex, Client: client}
			result, err = entry.Handler(ctx, argv)
			_ = snap // read-only handlers consult d.db via ctx; snap is available for future use
		})
		return result, err
	}
	d.ex.RunUnderLock(func() {
		ctx := &CommandContext{DB: d.db, DBIndex: client.DBIndex, Client: client}
		result, err = entry.Handler(ctx, argv)
	})
	if entry.Flags&FlagWrite != 0 && d.db.bridge != nil && d.db.bridge.mode == BridgeWriteThrough {
		if cerr := d.db.bridge.Commit(encodeValueForStore); cerr != nil && err == nil {
			result, err = nil, cerr
		}
	}
	if e, ok := err.(*Error); ok && e.Kind == InternalError {
		d.db.log.Warn("internal error", zap.Error(e))
	}
	return result, err
}

func (d *Dispatcher) beginMulti(client *ClientState) (interface{}, error) {
	if client.multiOpen {
		return nil, newErr(ProtocolError, "ERR", "MULTI calls can not be nested")
	}
	client.multiOpen = true
	client.multiDirty = false
	client.queued = nil
	d.ex.BeginMulti()
	return "OK", nil
}

func (d *Dispatcher) discardMulti(client *ClientState) (interface{}, error) {
	if !client.multiOpen {
		return nil, newErr(ProtocolError, "ERR", "DISCARD without MULTI")
	}
	d.endMulti(client)
	return "OK", nil
}

func (d *Dispatcher) endMulti(client *ClientState) {
	client.multiOpen = false
	client.multiDirty = false
	client.queued = nil
	for k := range client.watching {
		delete(client.watching, k)
	}
	d.ex.EndMulti()
}

// watch implements spec.md §4.7's per-client watched-key tracking.
func (d *Dispatcher) watch(client *ClientState, keys []string) (interface{}, error) {
	if client.multiOpen {
		return nil, newErr(ProtocolError, "ERR", "WATCH inside MULTI is not allowed")
	}
	ks := d.db.keyspaces[client.DBIndex]
	for _, k := range keys {
		gen := ks.Watch(k)
		client.watching[k] = watchEntry{dbIndex: client.DBIndex, gen: gen}
	}
	return "OK", nil
}

func (d *Dispatcher) unwatch(client *ClientState) (interface{}, error) {
	for k, w := range client.watching {
		d.db.keyspaces[w.dbIndex].Unwatch(k)
	}
	client.watching = make(map[string]watchEntry)
	return "OK", nil
}

// execMulti implements spec.md §4.7's EXEC: "any write to a watched key
// before EXEC flags the transaction dirty and EXEC returns a distinguished
// empty result." Propagation atomicity ("a synthetic MULTI is emitted on
// first write, and EXEC is emitted after the last") is represented by
// running the whole queued batch under one lock acquisition.
//
// A pre-execution enqueue error (unknown command or wrong arity while
// MULTI is open) sets client.multiDirty in Dispatch; EXEC checks that
// first and aborts with EXECABORT without running any of the queue,
// distinct from a dirtied-by-watch abort which returns a nil result.
func (d *Dispatcher) execMulti(client *ClientState) (interface{}, error) {
	if !client.multiOpen {
		return nil, newErr(ProtocolError, "ERR", "EXEC without MULTI")
	}
	defer d.endMulti(client)

	if client.multiDirty {
		return nil, ErrExecAbort
	}

	for k, w := range client.watching {
		if d.db.keyspaces[w.dbIndex].Changed(k, w.gen) {
			return nil, nil // distinguished empty result: transaction aborted
		}
	}

	results := make([]interface{}, 0, len(client.queued))
	var firstErr error
	d.ex.RunUnderLock(func() {
		for _, qc := range client.queued {
			entry, ok := d.table[qc.name]
			if !ok {
				results = append(results, newErr(ProtocolError, "ERR", "unknown command"))
				continue
			}
			ctx := &CommandContext{DB: d.db, DBIndex: client.DBIndex, Client: client, inExec: true}
			r, err := entry.Handler(ctx, qc.argv)
			if err != nil {
				results = append(results, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			results = append(results, r)
		}
	})
	return results, nil
}
