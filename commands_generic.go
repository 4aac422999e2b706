package kvcore

import (
	"strconv"
	"strings"
	"time"
)

// registerGenericCommands wires the keyspace-meta, transaction, and
// admin/introspection surface of SPEC_FULL.md §4.11. MULTI/EXEC/DISCARD/
// WATCH/UNWATCH are intercepted earlier in Dispatcher.Dispatch (they need
// access to client state the generic handler signature doesn't carry) but
// are still registered here so arity/flags are validated uniformly and so
// they appear in the dispatch table for introspection (COMMAND, if ever
// added).
func registerGenericCommands(d *Dispatcher) {
	d.register(&CommandEntry{Name: "DEL", Handler: cmdDel, Arity: -2, Flags: FlagWrite, Keys: KeySpec{FirstKey: 1, LastKey: -1, Step: 1}, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "EXISTS", Handler: cmdExists, Arity: -2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: KeySpec{FirstKey: 1, LastKey: -1, Step: 1}, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "TYPE", Handler: cmdType, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "TTL", Handler: cmdTTL, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "PTTL", Handler: cmdPTTL, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "EXPIRE", Handler: cmdExpire, Arity: 3, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "PEXPIRE", Handler: cmdPExpire, Arity: 3, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "PERSIST", Handler: cmdPersist, Arity: 2, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "DBSIZE", Handler: cmdDBSize, Arity: 1, Flags: FlagReadOnly | FlagFast, Keys: noKeys, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "FLUSHDB", Handler: cmdFlushDB, Arity: 1, Flags: FlagWrite, Keys: noKeys, ACL: ACLKeyspace})
	d.register(&CommandEntry{Name: "KEYS", Handler: cmdKeys, Arity: 2, Flags: FlagReadOnly, Keys: noKeys, ACL: ACLKeyspace})

	d.register(&CommandEntry{Name: "MULTI", Handler: noopTxnHandler, Arity: 1, Flags: FlagFast | FlagNoScript, Keys: noKeys, ACL: ACLTxn})
	d.register(&CommandEntry{Name: "EXEC", Handler: noopTxnHandler, Arity: 1, Flags: FlagNoScript, Keys: noKeys, ACL: ACLTxn})
	d.register(&CommandEntry{Name: "DISCARD", Handler: noopTxnHandler, Arity: 1, Flags: FlagFast | FlagNoScript, Keys: noKeys, ACL: ACLTxn})
	d.register(&CommandEntry{Name: "WATCH", Handler: noopTxnHandler, Arity: -2, Flags: FlagFast | FlagNoScript, Keys: KeySpec{FirstKey: 1, LastKey: -1, Step: 1}, ACL: ACLTxn})
	d.register(&CommandEntry{Name: "UNWATCH", Handler: noopTxnHandler, Arity: 1, Flags: FlagFast | FlagNoScript, Keys: noKeys, ACL: ACLTxn})

	d.register(&CommandEntry{Name: "INFO", Handler: cmdInfo, Arity: -1, Flags: FlagAdmin | FlagOKLoading | FlagOKStale, Keys: noKeys, ACL: ACLAdmin})
	d.register(&CommandEntry{Name: "CONFIG", Handler: cmdConfig, Arity: -2, Flags: FlagAdmin, Keys: noKeys, ACL: ACLAdmin})
}

// noopTxnHandler is never actually invoked: Dispatcher.Dispatch intercepts
// these five names before reaching runOne. It exists only so the dispatch
// table has a complete entry (arity/flags) to validate and introspect.
func noopTxnHandler(ctx *CommandContext, argv []string) (interface{}, error) {
	return nil, internalErr("txn command %s dispatched to noop handler", argv[0])
}

func cmdDel(ctx *CommandContext, argv []string) (interface{}, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	deleted := int64(0)
	for _, key := range argv[1:] {
		if ks.Delete(key) {
			deleted++
			if ctx.DB.bridge != nil {
				ctx.DB.bridge.RecordDelete(key)
			}
		}
	}
	return deleted, nil
}

func cmdExists(ctx *CommandContext, argv []string) (interface{}, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	count := int64(0)
	for _, key := range argv[1:] {
		if _, ok := ks.Get(key); ok {
			count++
		}
	}
	return count, nil
}

func cmdType(ctx *CommandContext, argv []string) (interface{}, error) {
	v, ok := ctx.DB.Keyspace(ctx.DBIndex).Get(argv[1])
	if !ok {
		return "none", nil
	}
	return v.Type.String(), nil
}

func cmdTTL(ctx *CommandContext, argv []string) (interface{}, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	if _, ok := ks.Get(argv[1]); !ok {
		return int64(-2), nil
	}
	when, ok := ks.Expiry().PeekNextExpiry(argv[1])
	if !ok {
		return int64(-1), nil
	}
	remain := when - time.Now().UnixMilli()
	if remain < 0 {
		remain = 0
	}
	return remain / 1000, nil
}

func cmdPTTL(ctx *CommandContext, argv []string) (interface{}, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	if _, ok := ks.Get(argv[1]); !ok {
		return int64(-2), nil
	}
	when, ok := ks.Expiry().PeekNextExpiry(argv[1])
	if !ok {
		return int64(-1), nil
	}
	remain := when - time.Now().UnixMilli()
	if remain < 0 {
		remain = 0
	}
	return remain, nil
}

func cmdExpire(ctx *CommandContext, argv []string) (interface{}, error) {
	sec, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return nil, ErrNotInt
	}
	return setExpireHelper(ctx, argv[1], time.Now().UnixMilli()+sec*1000)
}

func cmdPExpire(ctx *CommandContext, argv []string) (interface{}, error) {
	ms, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return nil, ErrNotInt
	}
	return setExpireHelper(ctx, argv[1], time.Now().UnixMilli()+ms)
}

func setExpireHelper(ctx *CommandContext, key string, whenMs int64) (interface{}, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	if _, ok := ks.Get(key); !ok {
		return int64(0), nil
	}
	ks.Expiry().SetExpire(key, nil, whenMs)
	if ctx.DB.bridge != nil {
		ctx.DB.bridge.provider.SetExpire(key, whenMs)
	}
	return int64(1), nil
}

func cmdPersist(ctx *CommandContext, argv []string) (interface{}, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	if !ks.Expiry().HasAny(argv[1]) {
		return int64(0), nil
	}
	ks.Expiry().RemoveExpire(argv[1], nil)
	return int64(1), nil
}

func cmdDBSize(ctx *CommandContext, argv []string) (interface{}, error) {
	return int64(ctx.DB.Keyspace(ctx.DBIndex).Len()), nil
}

func cmdFlushDB(ctx *CommandContext, argv []string) (interface{}, error) {
	ctx.DB.mu.Lock()
	ctx.DB.keyspaces[ctx.DBIndex] = NewKeyspace()
	ctx.DB.mu.Unlock()
	return "OK", nil
}

// cmdKeys implements spec.md §6's "KEYS (pattern-unfiltered scan variant)":
// no glob matching, just the full live key set, per SPEC_FULL.md §4.11's
// explicit scoping-down of this command.
func cmdKeys(ctx *CommandContext, argv []string) (interface{}, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	out := make([]string, 0, ks.Len())
	ks.Range(func(key string, _ *Value) bool {
		out = append(out, key)
		return true
	})
	return out, nil
}

// configurable is the small whitelist CONFIG GET/SET exposes; a real ACL/
// config-rewrite subsystem is out of this repo's scope, but the shape
// (name -> get/set closures) lets cmd/kvcored's flags layer reuse it.
var configurable = map[string]struct {
	get func(c *Config) string
	set func(c *Config, val string) error
}{
	"maxmemory": {
		get: func(c *Config) string { return strconv.FormatInt(c.MaxMemory, 10) },
		set: func(c *Config, val string) error {
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return ErrNotInt
			}
			c.MaxMemory = n
			return nil
		},
	},
	"maxmemory-policy": {
		get: func(c *Config) string { return string(c.MaxMemoryPolicy) },
		set: func(c *Config, val string) error {
			c.MaxMemoryPolicy = EvictionPolicy(val)
			return nil
		},
	},
	"hz": {
		get: func(c *Config) string { return strconv.Itoa(c.Hz) },
		set: func(c *Config, val string) error {
			n, err := strconv.Atoi(val)
			if err != nil {
				return ErrNotInt
			}
			c.Hz = n
			return nil
		},
	},
	"appendonly": {
		get: func(c *Config) string { return strconv.FormatBool(c.AppendOnly) },
		set: func(c *Config, val string) error {
			c.AppendOnly = strings.EqualFold(val, "yes") || strings.EqualFold(val, "true")
			return nil
		},
	},
}

// cmdConfig implements CONFIG GET/SET against the whitelist above; argv[1]
// is the GET/SET sub-command, matching how cmd/kvcored's REPL splits the
// line "CONFIG GET foo" on whitespace into argv = ["CONFIG", "GET",
// "foo"].
func cmdConfig(ctx *CommandContext, argv []string) (interface{}, error) {
	if len(argv) < 2 {
		return nil, ErrWrongArity
	}
	switch strings.ToUpper(argv[1]) {
	case "GET":
		if len(argv) != 3 {
			return nil, ErrWrongArity
		}
		entry, ok := configurable[strings.ToLower(argv[2])]
		if !ok {
			return []string{}, nil
		}
		return []string{argv[2], entry.get(ctx.DB.cfg)}, nil
	case "SET":
		if len(argv) != 4 {
			return nil, ErrWrongArity
		}
		entry, ok := configurable[strings.ToLower(argv[2])]
		if !ok {
			return nil, newErr(ProtocolError, "ERR", "Unknown option or number of arguments for CONFIG SET - '%s'", argv[2])
		}
		if err := entry.set(ctx.DB.cfg, argv[3]); err != nil {
			return nil, err
		}
		return "OK", nil
	default:
		return nil, ErrSyntax
	}
}

func cmdInfo(ctx *CommandContext, argv []string) (interface{}, error) {
	hits, misses := int64(0), int64(0)
	if ctx.DB.bridge != nil {
		hits, misses = ctx.DB.bridge.Stats()
	}
	info := map[string]string{
		"role":                 ctx.DB.role.String(),
		"used_memory":          strconv.FormatInt(ctx.DB.UsedMemory(), 10),
		"bridge_hits":          strconv.FormatInt(hits, 10),
		"bridge_misses":        strconv.FormatInt(misses, 10),
		"connected_databases":  strconv.Itoa(len(ctx.DB.keyspaces)),
	}
	for k, v := range ctx.DB.stats.Snapshot() {
		info[k] = strconv.FormatInt(v, 10)
	}
	return info, nil
}
