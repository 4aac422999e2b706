package kvcore

import (
	"strconv"
	"strings"
	"time"
)

// registerStringCommands wires spec.md §6's string-category surface
// (SPEC_FULL.md §4.11's list), grounded on gholt-valuestore's memWriter
// write path (valuesstore.go: decode, mutate, re-encode, stamp) generalized
// from a flat byte blob to Value's typed payloads.
func registerStringCommands(d *Dispatcher) {
	d.register(&CommandEntry{Name: "GET", Handler: cmdGet, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "SET", Handler: cmdSet, Arity: -3, Flags: FlagWrite | FlagDenyOOM, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "GETEX", Handler: cmdGetEx, Arity: -2, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "GETSET", Handler: cmdGetSet, Arity: 3, Flags: FlagWrite | FlagDenyOOM, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "SETNX", Handler: cmdSetNX, Arity: 3, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "APPEND", Handler: cmdAppend, Arity: 3, Flags: FlagWrite | FlagDenyOOM, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "STRLEN", Handler: cmdStrlen, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "INCR", Handler: cmdIncr, Arity: 2, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "INCRBY", Handler: cmdIncrBy, Arity: 3, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "DECR", Handler: cmdDecr, Arity: 2, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLString})
	d.register(&CommandEntry{Name: "DECRBY", Handler: cmdDecrBy, Arity: 3, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLString})
}

func stringValue(ctx *CommandContext, key string) ([]byte, *Value, error) {
	v, ok := ctx.DB.LookupWithReadThrough(ctx.DBIndex, key)
	if !ok {
		return nil, nil, nil
	}
	if v.Type != TypeString {
		return nil, nil, wrongTypeFor("string op")
	}
	return v.payload.([]byte), v, nil
}

func cmdGet(ctx *CommandContext, argv []string) (interface{}, error) {
	b, _, err := stringValue(ctx, argv[1])
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return string(b), nil
}

// cmdSet implements SET key value [EX sec|PX ms] [NX|XX] [KEEPTTL].
func cmdSet(ctx *CommandContext, argv []string) (interface{}, error) {
	key, val := argv[1], argv[2]
	ks := ctx.DB.Keyspace(ctx.DBIndex)

	var exMs int64
	keepTTL := false
	nx, xx := false, false
	for i := 3; i < len(argv); i++ {
		switch strings.ToUpper(argv[i]) {
		case "EX":
			i++
			if i >= len(argv) {
				return nil, ErrSyntax
			}
			sec, err := strconv.ParseInt(argv[i], 10, 64)
			if err != nil {
				return nil, ErrNotInt
			}
			exMs = time.Now().UnixMilli() + sec*1000
		case "PX":
			i++
			if i >= len(argv) {
				return nil, ErrSyntax
			}
			ms, err := strconv.ParseInt(argv[i], 10, 64)
			if err != nil {
				return nil, ErrNotInt
			}
			exMs = time.Now().UnixMilli() + ms
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "KEEPTTL":
			keepTTL = true
		default:
			return nil, ErrSyntax
		}
	}
	_, existed := ks.Get(key)
	if nx && existed {
		return nil, nil
	}
	if xx && !existed {
		return nil, nil
	}

	enc, body := TryEncodeString([]byte(val))
	v := NewValue(TypeString, enc, body)
	v = ShareIfEligible(v, isLFUPolicy(ctx.DB.cfg.MaxMemoryPolicy) || ctx.DB.cfg.MaxMemoryPolicy != PolicyNoEviction)
	ks.Set(key, v)
	if ctx.DB.bridge != nil {
		ctx.DB.bridge.RecordWrite(key, v)
	}
	if exMs != 0 {
		ks.Expiry().SetExpire(key, nil, exMs)
	} else if !keepTTL {
		ks.Expiry().RemoveExpire(key, nil)
	}
	return "OK", nil
}

// cmdGetEx implements GETEX key [EX sec|PX ms|PERSIST].
func cmdGetEx(ctx *CommandContext, argv []string) (interface{}, error) {
	key := argv[1]
	b, _, err := stringValue(ctx, key)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	for i := 2; i < len(argv); i++ {
		switch strings.ToUpper(argv[i]) {
		case "PERSIST":
			ks.Expiry().RemoveExpire(key, nil)
		case "EX":
			i++
			sec, perr := strconv.ParseInt(argv[i], 10, 64)
			if perr != nil {
				return nil, ErrNotInt
			}
			ks.Expiry().SetExpire(key, nil, time.Now().UnixMilli()+sec*1000)
		case "PX":
			i++
			ms, perr := strconv.ParseInt(argv[i], 10, 64)
			if perr != nil {
				return nil, ErrNotInt
			}
			ks.Expiry().SetExpire(key, nil, time.Now().UnixMilli()+ms)
		default:
			return nil, ErrSyntax
		}
	}
	return string(b), nil
}

func cmdGetSet(ctx *CommandContext, argv []string) (interface{}, error) {
	key, val := argv[1], argv[2]
	old, _, err := stringValue(ctx, key)
	if err != nil {
		return nil, err
	}
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	enc, body := TryEncodeString([]byte(val))
	v := NewValue(TypeString, enc, body)
	ks.Set(key, v)
	ks.Expiry().RemoveExpire(key, nil)
	if ctx.DB.bridge != nil {
		ctx.DB.bridge.RecordWrite(key, v)
	}
	if old == nil {
		return nil, nil
	}
	return string(old), nil
}

func cmdSetNX(ctx *CommandContext, argv []string) (interface{}, error) {
	key, val := argv[1], argv[2]
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	if _, existed := ks.Get(key); existed {
		return int64(0), nil
	}
	enc, body := TryEncodeString([]byte(val))
	ks.Set(key, NewValue(TypeString, enc, body))
	return int64(1), nil
}

func cmdAppend(ctx *CommandContext, argv []string) (interface{}, error) {
	key, suffix := argv[1], argv[2]
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	b, _, err := stringValue(ctx, key)
	if err != nil {
		return nil, err
	}
	nb := append(append([]byte{}, b...), suffix...)
	enc, body := TryEncodeString(nb)
	ks.Set(key, NewValue(TypeString, enc, body))
	return int64(len(nb)), nil
}

func cmdStrlen(ctx *CommandContext, argv []string) (interface{}, error) {
	b, _, err := stringValue(ctx, argv[1])
	if err != nil {
		return nil, err
	}
	return int64(len(b)), nil
}

func cmdIncr(ctx *CommandContext, argv []string) (interface{}, error) {
	return incrByHelper(ctx, argv[1], 1)
}

func cmdIncrBy(ctx *CommandContext, argv []string) (interface{}, error) {
	n, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return nil, ErrNotInt
	}
	return incrByHelper(ctx, argv[1], n)
}

func cmdDecr(ctx *CommandContext, argv []string) (interface{}, error) {
	return incrByHelper(ctx, argv[1], -1)
}

func cmdDecrBy(ctx *CommandContext, argv []string) (interface{}, error) {
	n, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return nil, ErrNotInt
	}
	return incrByHelper(ctx, argv[1], -n)
}

func incrByHelper(ctx *CommandContext, key string, delta int64) (interface{}, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	b, _, err := stringValue(ctx, key)
	if err != nil {
		return nil, err
	}
	var cur int64
	if b != nil {
		cur, err = strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return nil, ErrNotInt
		}
	}
	next := cur + delta
	enc, body := TryEncodeString([]byte(strconv.FormatInt(next, 10)))
	v := ShareIfEligible(NewValue(TypeString, enc, body), false)
	ks.Set(key, v)
	return next, nil
}
