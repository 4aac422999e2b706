package kvcore

import (
	"encoding/binary"
)

// expireSubkey removes one expiring member from a container value when its
// subkey-level expiry entry fires, per spec.md §4.2's "A subkey-level entry
// expires a member within a container." Only hash/nested-hash fields and
// zset members carry subkey expirations in this core (SPEC_FULL.md §3's
// supplement); other container types ignore the call.
func expireSubkey(v *Value, subkey string) {
	switch v.Type {
	case TypeHash, TypeNestedHash:
		delete(v.payload.(*hashPayload).fields, subkey)
	case TypeZSet:
		v.payload.(*zsetPayload).remove([]byte(subkey))
	}
}

// encodeValueForStore gives bridge.go a single opaque byte-slice
// serialization for any Value, independent of RESP wire format (which is
// out of scope per spec.md §1). This is deliberately simple — a type tag
// byte plus a type-specific body — since the secondary-store provider only
// needs to round-trip through decodeValueFromStore, never interoperate
// with an external RESP client.
func encodeValueForStore(v *Value) []byte {
	out := []byte{byte(v.Type), byte(v.Encoding)}
	switch v.Type {
	case TypeString:
		out = append(out, v.payload.([]byte)...)
	case TypeHash, TypeNestedHash:
		hp := v.payload.(*hashPayload)
		for k, val := range hp.fields {
			out = appendLP(out, []byte(k))
			out = appendLP(out, val)
		}
	case TypeSet:
		sp := v.payload.(*setPayload)
		for _, m := range sp.members() {
			out = appendLP(out, m)
		}
	case TypeZSet:
		zp := v.payload.(*zsetPayload)
		for _, zm := range zp.sorted() {
			out = appendLP(out, zm.member)
			var sb [8]byte
			binary.BigEndian.PutUint64(sb[:], uint64(int64(zm.score*1e6)))
			out = append(out, sb[:]...)
		}
	case TypeList:
		lp := v.payload.(*listElemsPayload)
		for _, e := range lp.elems() {
			out = appendLP(out, e)
		}
	}
	return out
}

// decodeValueFromStore is the read-through counterpart consulted by
// bridge.go's ReadThrough; only string and hash bodies are decoded here.
// For any other type the returned Value carries the stored type and
// encoding tags, but its payload is the raw encoded body ([]byte), not the
// container payload that type's commands expect.
func decodeValueFromStore(framed []byte) *Value {
	if len(framed) < 2 {
		return NewValue(TypeString, EncRaw, []byte{})
	}
	typ, enc := ValueType(framed[0]), Encoding(framed[1])
	body := framed[2:]
	switch typ {
	case TypeString:
		return NewValue(TypeString, enc, append([]byte(nil), body...))
	case TypeHash, TypeNestedHash:
		hp := newHashPayload()
		for len(body) > 0 {
			var k, v []byte
			k, body = readLP(body)
			v, body = readLP(body)
			hp.fields[string(k)] = v
		}
		return NewValue(typ, enc, hp)
	default:
		return NewValue(typ, enc, body)
	}
}

func appendLP(dst, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
}

func readLP(src []byte) (field []byte, rest []byte) {
	if len(src) < 4 {
		return nil, nil
	}
	n := binary.BigEndian.Uint32(src[:4])
	src = src[4:]
	if uint32(len(src)) < n {
		return nil, nil
	}
	return src[:n], src[n:]
}
