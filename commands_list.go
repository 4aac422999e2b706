package kvcore

import "strconv"

// registerListCommands wires the list-category surface of SPEC_FULL.md
// §4.11, grounded on value_encoding.go's listElemsPayload (itself grounded
// on spec.md §4.1's packed-segment transition).
func registerListCommands(d *Dispatcher) {
	d.register(&CommandEntry{Name: "LPUSH", Handler: cmdLPush, Arity: -3, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLList})
	d.register(&CommandEntry{Name: "RPUSH", Handler: cmdRPush, Arity: -3, Flags: FlagWrite | FlagDenyOOM | FlagFast, Keys: firstArgKey, ACL: ACLList})
	d.register(&CommandEntry{Name: "LPOP", Handler: cmdLPop, Arity: -2, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLList})
	d.register(&CommandEntry{Name: "RPOP", Handler: cmdRPop, Arity: -2, Flags: FlagWrite | FlagFast, Keys: firstArgKey, ACL: ACLList})
	d.register(&CommandEntry{Name: "LRANGE", Handler: cmdLRange, Arity: 4, Flags: FlagReadOnly | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLList})
	d.register(&CommandEntry{Name: "LLEN", Handler: cmdLLen, Arity: 2, Flags: FlagReadOnly | FlagFast | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLList})
	d.register(&CommandEntry{Name: "LINDEX", Handler: cmdLIndex, Arity: 3, Flags: FlagReadOnly | FlagAsyncSafe, Keys: firstArgKey, ACL: ACLList})
}

func listValue(ctx *CommandContext, key string, createIfMissing bool) (*listElemsPayload, *Value, error) {
	ks := ctx.DB.Keyspace(ctx.DBIndex)
	v, ok := ks.Get(key)
	if !ok {
		if !createIfMissing {
			return nil, nil, nil
		}
		v = NewValue(TypeList, EncListpack, newListElemsPayload())
		ks.Set(key, v)
		return v.payload.(*listElemsPayload), v, nil
	}
	if v.Type != TypeList {
		return nil, nil, wrongTypeFor("list op")
	}
	return v.payload.(*listElemsPayload), v, nil
}

func cmdLPush(ctx *CommandContext, argv []string) (interface{}, error) {
	lp, v, err := listValue(ctx, argv[1], true)
	if err != nil {
		return nil, err
	}
	vals := make([][]byte, len(argv)-2)
	for i, a := range argv[2:] {
		vals[i] = []byte(a)
	}
	lp.lpush(vals...)
	lp.maybePromote(DefaultEncodingThresholds().ListSegmentSize)
	promoteListEncoding(v, lp)
	return int64(len(lp.elems())), nil
}

func cmdRPush(ctx *CommandContext, argv []string) (interface{}, error) {
	lp, v, err := listValue(ctx, argv[1], true)
	if err != nil {
		return nil, err
	}
	vals := make([][]byte, len(argv)-2)
	for i, a := range argv[2:] {
		vals[i] = []byte(a)
	}
	lp.rpush(vals...)
	lp.maybePromote(DefaultEncodingThresholds().ListSegmentSize)
	promoteListEncoding(v, lp)
	return int64(len(lp.elems())), nil
}

// promoteListEncoding applies spec.md §4.1's one-way packed-to-linked
// transition once a list spans more than one segment.
func promoteListEncoding(v *Value, lp *listElemsPayload) {
	if len(lp.segments) > 1 {
		v.Encoding = EncLinkedList
	}
}

func cmdLPop(ctx *CommandContext, argv []string) (interface{}, error) {
	lp, _, err := listValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if lp == nil {
		return nil, nil
	}
	count := 1
	if len(argv) > 2 {
		count, err = strconv.Atoi(argv[2])
		if err != nil {
			return nil, ErrNotInt
		}
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		v, ok := lp.lpop()
		if !ok {
			break
		}
		out = append(out, string(v))
	}
	maybeDeleteEmptyList(ctx, argv[1], lp)
	if len(out) == 0 {
		return nil, nil
	}
	if len(argv) <= 2 {
		return out[0], nil
	}
	return out, nil
}

func cmdRPop(ctx *CommandContext, argv []string) (interface{}, error) {
	lp, _, err := listValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if lp == nil {
		return nil, nil
	}
	count := 1
	if len(argv) > 2 {
		count, err = strconv.Atoi(argv[2])
		if err != nil {
			return nil, ErrNotInt
		}
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		v, ok := lp.rpop()
		if !ok {
			break
		}
		out = append(out, string(v))
	}
	maybeDeleteEmptyList(ctx, argv[1], lp)
	if len(out) == 0 {
		return nil, nil
	}
	if len(argv) <= 2 {
		return out[0], nil
	}
	return out, nil
}

// maybeDeleteEmptyList implements the Redis-family convention that an
// emptied container key is itself deleted, honored here via the ordinary
// Delete path so snapshot tombstoning still applies.
func maybeDeleteEmptyList(ctx *CommandContext, key string, lp *listElemsPayload) {
	if len(lp.elems()) == 0 {
		ctx.DB.Keyspace(ctx.DBIndex).Delete(key)
	}
}

func cmdLRange(ctx *CommandContext, argv []string) (interface{}, error) {
	lp, _, err := listValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if lp == nil {
		return []string{}, nil
	}
	start, serr := strconv.Atoi(argv[2])
	if serr != nil {
		return nil, ErrNotInt
	}
	stop, eerr := strconv.Atoi(argv[3])
	if eerr != nil {
		return nil, ErrNotInt
	}
	elems := lp.elems()
	start, stop = normalizeRange(start, stop, len(elems))
	if start > stop {
		return []string{}, nil
	}
	out := make([]string, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, string(elems[i]))
	}
	return out, nil
}

func normalizeRange(start, stop, n int) (int, int) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

func cmdLLen(ctx *CommandContext, argv []string) (interface{}, error) {
	lp, _, err := listValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if lp == nil {
		return int64(0), nil
	}
	return int64(len(lp.elems())), nil
}

func cmdLIndex(ctx *CommandContext, argv []string) (interface{}, error) {
	lp, _, err := listValue(ctx, argv[1], false)
	if err != nil {
		return nil, err
	}
	if lp == nil {
		return nil, nil
	}
	idx, ierr := strconv.Atoi(argv[2])
	if ierr != nil {
		return nil, ErrNotInt
	}
	elems := lp.elems()
	if idx < 0 {
		idx += len(elems)
	}
	if idx < 0 || idx >= len(elems) {
		return nil, nil
	}
	return string(elems[idx]), nil
}
