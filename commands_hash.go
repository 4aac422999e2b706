package kvcore

// registerHashCommands wires the hash-category surface of SPEC_FULL.md
// §4.11, grounded on value_encoding.go's hashPayload.
func registerHashCommands(d *Dispatcher) {
	d.register(&CommandEntry{Name: "HSET", Handler: cmdHSet, Arity: -4, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLHash})
	d.register(&CommandEntry{Name: "HGET", Handler: cmdHGet, Arity: 3, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLHash})
	d.register(&CommandEntry{Name: "HDEL", Handler: cmdHDel, Arity: -3, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLHash})
	d.register(&CommandEntry{Name: "HGETALL", Handler: cmdHGetAll, Arity: 2, Flags: FlagReadOnly | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLHash})
	d.register(&CommandEntry{Name: "HLEN", Handler: cmdHLen, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLHash})
	d.register(&CommandEntry{Name: "HEXISTS", Handler: cmdHExists, Arity: 3, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLHash})
}

func hashValue(ctx *CommandContext, key string, createIfMissing bool) (*hashPayload, *Value, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	v, ok := ks.Get(key)
	if !ok {
		if !createIfMissing {
			return nil, nil, nil
		}
		v = NewValue(TypeHash, EncListpack, newHashPayload())
		ks.Set(key, v)
		return v.payload.(*hashPayload), v, nil
	}
	if v.Type != TypeHash {
		return nil, nil, wrongTypeFor("hash op")
	}
	return v.payload.(*hashPayload), v, nil
}

// promoteHashEncoding applies spec.md §4.1's packed<=128/<=64-byte-element
// default threshold, one-way.
func promoteHashEncoding(v *Value, hp *hashPayload) {
	th := DefaultEncodingThresholds()
	if v.Encoding == EncHashtable {
		return
	}
	if len(hp.fields) > th.MaxPackedEntries {
		v.Encoding = EncHashtable
		return
	}
	for k, val := range hp.fields {
		if len(k) > th.MaxElementBytes || len(val) > th.MaxElementBytes {
			v.Encoding = EncHashtable
			return
		}
	}
}

func cmdHSet(ctx *CommandContext, argv []string) (interface{}, error) {
	if (len(argv)-2)%2 != 0 {
		return nil, ErrWrongArity
	}
	hp, v, err := hashValue(ctx, argv[1], true)
	if err != nil {
		return nil, err
	}
	added := int64(0)
	for i := 2; i < len(argv); i += 2 {
		field, val := argv[i], argv[i+1]
		if _, existed := hp.fields[field]; !existed {
			added++
		}
		hp.fields[field] = []byte(val)
	}
	promoteHashEncoding(v, hp)
	return added, nil
}

func cmdHGet(ctx *CommandContext, argv []string) (interface{}, error) {
	hp, _, err := hashValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if hp == nil {
		return nil, nil
	}
	val, ok := hp.fields[argv[2]]
	if !ok {
		return nil, nil
	}
	return string(val), nil
}

func cmdHDel(ctx *CommandContext, argv []string) (interface{}, error) {
	hp, _, err := hashValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if hp == nil {
		return int64(0), nil
	}
	removed := int64(0)
	for _, field := range argv[2:] {
		if _, ok := hp.fields[field]; ok {
			delete(hp.fields, field)
			removed++
		}
	}
	if len(hp.fields) == 0 {
		ctx.DB.Keyspace(ctx.DBIndex).Delete(argv[1])
	}
	return removed, nil
}

func cmdHGetAll(ctx *CommandContext, argv []string) (interface{}, error) {
	hp, _, err := hashValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if hp == nil {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(hp.fields))
	for k, v := range hp.fields {
		out[k] = string(v)
	}
	return out, nil
}

func cmdHLen(ctx *CommandContext, argv []string) (interface{}, error) {
	hp, _, err := hashValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if hp == nil {
		return int64(0), nil
	}
	return int64(len(hp.fields)), nil
}

func cmdHExists(ctx *CommandContext, argv []string) (interface{}, error) {
	hp, _, err := hashValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if hp == nil {
		return int64(0), nil
	}
	if _, ok := hp.fields[argv[2]]; ok {
		return int64(1), nil
	}
	return int64(0), nil
}
