package kvcore

// registerSetCommands wires the set-category surface of SPEC_FULL.md
// §4.11, grounded on value_encoding.go's setPayload (intset-to-hashset
// one-way promotion per spec.md §4.1).
func registerSetCommands(d *Dispatcher) {
	d.register(&CommandEntry{Name: "SADD", Handler: cmdSAdd, Arity: -3, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLSet})
	d.register(&CommandEntry{Name: "SREM", Handler: cmdSRem, Arity: -3, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLSet})
	d.register(&CommandEntry{Name: "SCARD", Handler: cmdSCard, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLSet})
	d.register(&CommandEntry{Name: "SISMEMBER", Handler: cmdSIsMember, Arity: 3, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLSet})
	d.register(&CommandEntry{Name: "SMEMBERS", Handler: cmdSMembers, Arity: 2, Flags: FlagReadOnly | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLSet})
}

func setValue(ctx *CommandContext, key string, createIfMissing bool) (*setPayload, *Value, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	v, ok := ks.Get(key)
	if !ok {
		if !createIfMissing {
			return nil, nil, nil
		}
		v = NewValue(TypeSet, EncIntset, newSetPayload())
		ks.Set(key, v)
		return v.payload.(*setPayload), v, nil
	}
	if v.Type != TypeSet {
		return nil, nil, wrongTypeFor("set op")
	}
	return v.payload.(*setPayload), v, nil
}

func cmdSAdd(ctx *CommandContext, argv []string) (interface{}, error) {
	sp, v, err := setValue(ctx, argv[1], true)
	if err != nil {
		return nil, err
	}
	added := int64(0)
	for _, m := range argv[2:] {
		if sp.add([]byte(m)) {
			added++
		}
	}
	if !sp.isIntset {
		v.Encoding = EncHashtable
	}
	return added, nil
}

func cmdSRem(ctx *CommandContext, argv []string) (interface{}, error) {
	sp, _, err := setValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return int64(0), nil
	}
	removed := int64(0)
	for _, m := range argv[2:] {
		if sp.remove([]byte(m)) {
			removed++
		}
	}
	if sp.card() == 0 {
		ctx.DB.Keyspace(ctx.DBIndex).Delete(argv[1])
	}
	return removed, nil
}

func cmdSCard(ctx *CommandContext, argv []string) (interface{}, error) {
	sp, _, err := setValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return int64(0), nil
	}
	return int64(sp.card()), nil
}

func cmdSIsMember(ctx *CommandContext, argv []string) (interface{}, error) {
	sp, _, err := setValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return int64(0), nil
	}
	if sp.has([]byte(argv[2])) {
		return int64(1), nil
	}
	return int64(0), nil
}

func cmdSMembers(ctx *CommandContext, argv []string) (interface{}, error) {
	sp, _, err := setValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return []string{}, nil
	}
	members := sp.members()
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = string(m)
	}
	return out, nil
}
