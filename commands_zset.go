package kvcore

import "strconv"

// registerZSetCommands wires the sorted-set-category surface of
// SPEC_FULL.md §4.11, grounded on value_encoding.go's zsetPayload.
func registerZSetCommands(d *Dispatcher) {
	d.register(&CommandEntry{Name: "ZADD", Handler: cmdZAdd, Arity: -4, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLSortedSet})
	d.register(&CommandEntry{Name: "ZSCORE", Handler: cmdZScore, Arity: 3, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLSortedSet})
	d.register(&CommandEntry{Name: "ZRANGEBYSCORE", Handler: cmdZRangeByScore, Arity: -4, Flags: FlagReadOnly | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLSortedSet})
	d.register(&CommandEntry{Name: "ZCARD", Handler: cmdZCard, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLSortedSet})
	d.register(&CommandEntry{Name: "ZREM", Handler: cmdZRem, Arity: -3, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLSortedSet})
}

func zsetValue(ctx *CommandContext, key string, createIfMissing bool) (*zsetPayload, *Value, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	v, ok := ks.Get(key)
	if !ok {
		if !createIfMissing {
			return nil, nil, nil
		}
		v = NewValue(TypeZSet, EncListpack, newZSetPayload())
		ks.Set(key, v)
		return v.payload.(*zsetPayload), v, nil
	}
	if v.Type != TypeZSet {
		return nil, nil, wrongTypeFor("zset op")
	}
	return v.payload.(*zsetPayload), v, nil
}

func promoteZSetEncoding(v *Value, zp *zsetPayload) {
	if v.Encoding == EncSkiplist {
		return
	}
	if zp.card() > DefaultEncodingThresholds().MaxPackedEntries {
		v.Encoding = EncSkiplist
	}
}

func cmdZAdd(ctx *CommandContext, argv []string) (interface{}, error) {
	if (len(argv)-2)%2 != 0 {
		return nil, ErrWrongArity
	}
	zp, v, err := zsetValue(ctx, argv[1], true)
	if err != nil {
		return nil, err
	}
	added := int64(0)
	for i := 2; i < len(argv); i += 2 {
		score, serr := strconv.ParseFloat(argv[i], 64)
		if serr != nil {
			return nil, ErrNotInt
		}
		if zp.add([]byte(argv[i+1]), score) {
			added++
		}
	}
	promoteZSetEncoding(v, zp)
	return added, nil
}

func cmdZScore(ctx *CommandContext, argv []string) (interface{}, error) {
	zp, _, err := zsetValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if zp == nil {
		return nil, nil
	}
	score, ok := zp.score([]byte(argv[2]))
	if !ok {
		return nil, nil
	}
	return strconv.FormatFloat(score, 'g', -1, 64), nil
}

func cmdZRangeByScore(ctx *CommandContext, argv []string) (interface{}, error) {
	zp, _, err := zsetValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if zp == nil {
		return []string{}, nil
	}
	min, merr := strconv.ParseFloat(argv[2], 64)
	if merr != nil {
		return nil, ErrNotInt
	}
	max, xerr := strconv.ParseFloat(argv[3], 64)
	if xerr != nil {
		return nil, ErrNotInt
	}
	out := make([]string, 0, zp.card())
	for _, zm := range zp.sorted() {
		if zm.score >= min && zm.score <= max {
			out = append(out, string(zm.member))
		}
	}
	return out, nil
}

func cmdZCard(ctx *CommandContext, argv []string) (interface{}, error) {
	zp, _, err := zsetValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if zp == nil {
		return int64(0), nil
	}
	return int64(zp.card()), nil
}

func cmdZRem(ctx *CommandContext, argv []string) (interface{}, error) {
	zp, _, err := zsetValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if zp == nil {
		return int64(0), nil
	}
	removed := int64(0)
	for _, m := range argv[2:] {
		if zp.remove([]byte(m)) {
			removed++
		}
	}
	if zp.card() == 0 {
		ctx.DB.Keyspace(ctx.DBIndex).Delete(argv[1])
	}
	return removed, nil
}
