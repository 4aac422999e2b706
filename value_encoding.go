package kvcore

import (
	"strconv"
)

// This file implements spec.md §4.1's encoding transitions and the payload
// representations spec.md §3 names per type. Grounded on gholt-valuestore's
// one-way "packed to tree form never demotes" rule (the teacher's locmap
// split never un-splits except on explicit shrink, which this spec
// explicitly forbids for container encodings — "never demotes until
// deleted").

// EncodingThresholds are the configurable policy thresholds spec.md §4.1
// defaults: hash/zset packed<=128 entries and <=64-byte elements, list
// segment size 128, intset promoted to hashset on first non-integer.
type EncodingThresholds struct {
	MaxPackedEntries int
	MaxElementBytes  int
	ListSegmentSize  int
}

// DefaultEncodingThresholds returns spec.md §4.1's stated defaults.
func DefaultEncodingThresholds() EncodingThresholds {
	return EncodingThresholds{MaxPackedEntries: 128, MaxElementBytes: 64, ListSegmentSize: 128}
}

// --- string payload: plain []byte, encoding chosen by TryEncodeString ---

// TryEncodeString implements spec.md §4.1's try_encode for strings:
// integer-like strings become inline integers (EncInlineInt); short byte
// strings become EncEmbstr; anything else stays EncRaw.
func TryEncodeString(b []byte) (Encoding, []byte) {
	if len(b) > 0 && len(b) <= 20 {
		if _, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return EncInlineInt, b
		}
	}
	if len(b) <= 44 {
		return EncEmbstr, b
	}
	return EncRaw, b
}

// --- list payload ---

// elems flattens list segments into a single element slice; lists are kept
// as a slice-of-segments (EncLinkedList) once they exceed ListSegmentSize
// elements, or a single segment (EncListpack) while small, matching
// spec.md §4.1's packed-to-linked-of-packed-segments transition. Each
// "segment" here is a []([]byte) encoded as a slice of byte-slices rather
// than raw bytes, since this core never serializes values to wire bytes
// itself (that's RESP's job, out of scope per spec.md §1).
type listElemsPayload struct {
	segments [][][]byte
}

func newListElemsPayload() *listElemsPayload { return &listElemsPayload{segments: [][][]byte{{}}} }

func (l *listElemsPayload) elems() [][]byte {
	out := make([][]byte, 0)
	for _, seg := range l.segments {
		out = append(out, seg...)
	}
	return out
}

func (l *listElemsPayload) lpush(vals ...[]byte) {
	for _, v := range vals {
		l.segments[0] = append([][]byte{v}, l.segments[0]...)
	}
}

func (l *listElemsPayload) rpush(vals ...[]byte) {
	last := len(l.segments) - 1
	l.segments[last] = append(l.segments[last], vals...)
}

func (l *listElemsPayload) lpop() ([]byte, bool) {
	for i := range l.segments {
		if len(l.segments[i]) > 0 {
			v := l.segments[i][0]
			l.segments[i] = l.segments[i][1:]
			return v, true
		}
	}
	return nil, false
}

func (l *listElemsPayload) rpop() ([]byte, bool) {
	for i := len(l.segments) - 1; i >= 0; i-- {
		if n := len(l.segments[i]); n > 0 {
			v := l.segments[i][n-1]
			l.segments[i] = l.segments[i][:n-1]
			return v, true
		}
	}
	return nil, false
}

// maybePromote splits the list into additional segments once it exceeds
// segSize elements, per spec.md §4.1's "list segment size 128" default.
// One-way: segments are never merged back, only appended to or split further.
func (l *listElemsPayload) maybePromote(segSize int) {
	last := len(l.segments) - 1
	if len(l.segments[last]) > segSize {
		overflow := l.segments[last][segSize:]
		l.segments[last] = l.segments[last][:segSize]
		l.segments = append(l.segments, append([][]byte{}, overflow...))
	}
}

// --- set payload ---

type setPayload struct {
	intset   map[int64]struct{} // non-nil while EncIntset
	hashset  map[string]struct{}
	isIntset bool
}

func newSetPayload() *setPayload {
	return &setPayload{intset: map[int64]struct{}{}, isIntset: true}
}

// add returns whether the member was newly added, and promotes the set from
// intset to hashset on the first non-integer member, per spec.md §4.1
// ("intset promoted to hashset on first non-integer"). One-way: once
// promoted, members are never demoted back to intset.
func (s *setPayload) add(member []byte) bool {
	if s.isIntset {
		if n, err := strconv.ParseInt(string(member), 10, 64); err == nil {
			if _, ok := s.intset[n]; ok {
				return false
			}
			s.intset[n] = struct{}{}
			return true
		}
		s.promoteToHashset()
	}
	if _, ok := s.hashset[string(member)]; ok {
		return false
	}
	s.hashset[string(member)] = struct{}{}
	return true
}

func (s *setPayload) promoteToHashset() {
	s.hashset = make(map[string]struct{}, len(s.intset))
	for n := range s.intset {
		s.hashset[strconv.FormatInt(n, 10)] = struct{}{}
	}
	s.intset = nil
	s.isIntset = false
}

func (s *setPayload) remove(member []byte) bool {
	if s.isIntset {
		if n, err := strconv.ParseInt(string(member), 10, 64); err == nil {
			if _, ok := s.intset[n]; ok {
				delete(s.intset, n)
				return true
			}
		}
		return false
	}
	if _, ok := s.hashset[string(member)]; ok {
		delete(s.hashset, string(member))
		return true
	}
	return false
}

func (s *setPayload) has(member []byte) bool {
	if s.isIntset {
		n, err := strconv.ParseInt(string(member), 10, 64)
		if err != nil {
			return false
		}
		_, ok := s.intset[n]
		return ok
	}
	_, ok := s.hashset[string(member)]
	return ok
}

func (s *setPayload) card() int {
	if s.isIntset {
		return len(s.intset)
	}
	return len(s.hashset)
}

func (s *setPayload) members() [][]byte {
	out := make([][]byte, 0, s.card())
	if s.isIntset {
		for n := range s.intset {
			out = append(out, []byte(strconv.FormatInt(n, 10)))
		}
		return out
	}
	for m := range s.hashset {
		out = append(out, []byte(m))
	}
	return out
}

// --- hash payload ---

type hashPayload struct {
	fields map[string][]byte
}

func newHashPayload() *hashPayload { return &hashPayload{fields: map[string][]byte{}} }

// --- sorted-set payload ---

// zsetPayload keeps a map for O(1) score lookup and a sorted slice for
// range queries, matching spec.md §4.1's "skiplist+map" encoding once a
// zset is big; this core always keeps both in sync rather than modeling a
// true skiplist, since spec.md's invariants only constrain observable
// ordering, not the internal structure used to achieve it.
type zsetPayload struct {
	scores  map[string]float64
	members []zmember
	dirty   bool
}

type zmember struct {
	member []byte
	score  float64
}

func newZSetPayload() *zsetPayload {
	return &zsetPayload{scores: map[string]float64{}}
}

func (z *zsetPayload) add(member []byte, score float64) bool {
	_, existed := z.scores[string(member)]
	z.scores[string(member)] = score
	z.dirty = true
	return !existed
}

func (z *zsetPayload) remove(member []byte) bool {
	if _, ok := z.scores[string(member)]; !ok {
		return false
	}
	delete(z.scores, string(member))
	z.dirty = true
	return true
}

func (z *zsetPayload) score(member []byte) (float64, bool) {
	s, ok := z.scores[string(member)]
	return s, ok
}

func (z *zsetPayload) card() int { return len(z.scores) }

// sorted returns members ordered by (score, member) ascending, lazily
// rebuilt only when dirty — grounded on the teacher's lazy rehash idiom
// (don't do the expensive pass until the next read actually needs it).
func (z *zsetPayload) sorted() []zmember {
	if z.dirty || z.members == nil {
		z.members = z.members[:0]
		for m, s := range z.scores {
			z.members = append(z.members, zmember{member: []byte(m), score: s})
		}
		sortZMembers(z.members)
		z.dirty = false
	}
	return z.members
}

func sortZMembers(m []zmember) {
	// insertion sort is fine here: zset range queries are not this core's
	// hot path and spec.md does not budget a production-grade skiplist.
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && less(m[j], m[j-1]); j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}

func less(a, b zmember) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return string(a.member) < string(b.member)
}

// --- stream payload (see SPEC_FULL.md §3's supplement) ---

type streamEntry struct {
	idMs  int64
	idSeq int64
	kv    map[string][]byte
}

type streamPayload struct {
	entries []streamEntry
	lastSeq int64
}

func newStreamPayload() *streamPayload { return &streamPayload{} }

func (s *streamPayload) append(nowMs int64, fields map[string][]byte) (int64, int64) {
	seq := int64(0)
	if len(s.entries) > 0 && s.entries[len(s.entries)-1].idMs == nowMs {
		seq = s.entries[len(s.entries)-1].idSeq + 1
	}
	s.entries = append(s.entries, streamEntry{idMs: nowMs, idSeq: seq, kv: fields})
	return nowMs, seq
}

// --- module / nested-hash / cron payloads (SPEC_FULL.md §3) ---

// ModulePayload is the capability-set escape hatch spec.md §9's "Deep
// inheritance / dynamic dispatch" design note calls for: module values are
// opaque to the core beyond size accounting and equality-by-identity.
type ModulePayload struct {
	Opaque []byte
}

type cronPayload struct {
	note string
}

// --- generic payload helpers used by value.go ---

func dupPayload(t ValueType, p interface{}) interface{} {
	switch t {
	case TypeString:
		b := p.([]byte)
		nb := make([]byte, len(b))
		copy(nb, b)
		return nb
	case TypeList:
		lp := p.(*listElemsPayload)
		n := &listElemsPayload{}
		for _, seg := range lp.segments {
			ns := make([][]byte, len(seg))
			for i, e := range seg {
				ns[i] = append([]byte(nil), e...)
			}
			n.segments = append(n.segments, ns)
		}
		return n
	case TypeSet:
		sp := p.(*setPayload)
		n := &setPayload{isIntset: sp.isIntset}
		if sp.isIntset {
			n.intset = make(map[int64]struct{}, len(sp.intset))
			for k := range sp.intset {
				n.intset[k] = struct{}{}
			}
		} else {
			n.hashset = make(map[string]struct{}, len(sp.hashset))
			for k := range sp.hashset {
				n.hashset[k] = struct{}{}
			}
		}
		return n
	case TypeHash, TypeNestedHash:
		hp := p.(*hashPayload)
		n := newHashPayload()
		for k, v := range hp.fields {
			n.fields[k] = append([]byte(nil), v...)
		}
		return n
	case TypeZSet:
		zp := p.(*zsetPayload)
		n := newZSetPayload()
		for k, v := range zp.scores {
			n.scores[k] = v
		}
		return n
	case TypeStream:
		sp := p.(*streamPayload)
		n := &streamPayload{lastSeq: sp.lastSeq}
		n.entries = append(n.entries, sp.entries...)
		return n
	default:
		return p
	}
}

func payloadSize(t ValueType, p interface{}) int64 {
	switch t {
	case TypeString:
		return int64(len(p.([]byte)))
	case TypeList:
		lp := p.(*listElemsPayload)
		var n int64
		for _, seg := range lp.segments {
			for _, e := range seg {
				n += int64(len(e)) + 8
			}
		}
		return n
	case TypeSet:
		sp := p.(*setPayload)
		if sp.isIntset {
			return int64(len(sp.intset)) * 8
		}
		var n int64
		for k := range sp.hashset {
			n += int64(len(k)) + 8
		}
		return n
	case TypeHash, TypeNestedHash:
		hp := p.(*hashPayload)
		var n int64
		for k, v := range hp.fields {
			n += int64(len(k)+len(v)) + 16
		}
		return n
	case TypeZSet:
		zp := p.(*zsetPayload)
		var n int64
		for k := range zp.scores {
			n += int64(len(k)) + 16
		}
		return n
	case TypeStream:
		sp := p.(*streamPayload)
		var n int64
		for _, e := range sp.entries {
			for k, v := range e.kv {
				n += int64(len(k) + len(v))
			}
		}
		return n
	default:
		return 0
	}
}

func payloadEqual(t ValueType, a, b interface{}) bool {
	switch t {
	case TypeString:
		ab, bb := a.([]byte), b.([]byte)
		if len(ab) != len(bb) {
			return false
		}
		for i := range ab {
			if ab[i] != bb[i] {
				return false
			}
		}
		return true
	case TypeList:
		al, bl := a.(*listElemsPayload).elems(), b.(*listElemsPayload).elems()
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if string(al[i]) != string(bl[i]) {
				return false
			}
		}
		return true
	case TypeSet:
		as, bs := a.(*setPayload), b.(*setPayload)
		if as.card() != bs.card() {
			return false
		}
		for _, m := range as.members() {
			if !bs.has(m) {
				return false
			}
		}
		return true
	case TypeHash, TypeNestedHash:
		ah, bh := a.(*hashPayload), b.(*hashPayload)
		if len(ah.fields) != len(bh.fields) {
			return false
		}
		for k, v := range ah.fields {
			bv, ok := bh.fields[k]
			if !ok || string(v) != string(bv) {
				return false
			}
		}
		return true
	case TypeZSet:
		az, bz := a.(*zsetPayload), b.(*zsetPayload)
		if len(az.scores) != len(bz.scores) {
			return false
		}
		for k, v := range az.scores {
			bv, ok := bz.scores[k]
			if !ok || v != bv {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// sharedIntegers are the static singletons for small integers 0..9999, per
// spec.md §4.1's share_if_eligible. They are never LRU/LFU-tracked (their
// lruLfu field is meaningless), so share_if_eligible refuses to share a
// value whose encoding requires distinct per-instance LRU/LFU metadata —
// exactly the carve-out spec.md §4.1 requires.
var sharedIntegers [10000]*Value

func init() {
	for i := 0; i < 10000; i++ {
		b := []byte(strconv.Itoa(i))
		v := &Value{Type: TypeString, Encoding: EncInlineInt, payload: b, refcount: sharedSentinel}
		sharedIntegers[i] = v
	}
}

// ShareIfEligible implements spec.md §4.1's share_if_eligible: small
// integers 0..9999 return the shared static singleton unless requireLRU is
// set (the caller's eviction policy needs distinct per-value LRU/LFU
// metadata, per invariant (c)).
func ShareIfEligible(v *Value, requireLRU bool) *Value {
	if requireLRU || v.Type != TypeString || v.Encoding != EncInlineInt {
		return v
	}
	n, err := strconv.Atoi(string(v.payload.([]byte)))
	if err != nil || n < 0 || n >= 10000 {
		return v
	}
	return sharedIntegers[n]
}
