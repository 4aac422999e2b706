package kvcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValueForStoreString(t *testing.T) {
	v := NewValue(TypeString, EncRaw, []byte("payload"))
	encoded := encodeValueForStore(v)
	out := decodeValueFromStore(encoded)
	require.Equal(t, TypeString, out.Type)
	require.Equal(t, []byte("payload"), out.payload.([]byte))
}

func TestEncodeDecodeValueForStoreHash(t *testing.T) {
	v := NewValue(TypeHash, EncListpack, newHashPayload())
	hp := v.payload.(*hashPayload)
	hp.fields["f1"] = []byte("v1")
	hp.fields["f2"] = []byte("v2")

	encoded := encodeValueForStore(v)
	out := decodeValueFromStore(encoded)
	require.Equal(t, TypeHash, out.Type)
	gotHp := out.payload.(*hashPayload)
	require.Equal(t, []byte("v1"), gotHp.fields["f1"])
	require.Equal(t, []byte("v2"), gotHp.fields["f2"])
}

func TestDecodeValueFromStoreTooShortReturnsEmptyString(t *testing.T) {
	out := decodeValueFromStore([]byte{1})
	require.Equal(t, TypeString, out.Type)
	require.Equal(t, []byte{}, out.payload.([]byte))
}

func TestExpireSubkeyRemovesHashField(t *testing.T) {
	v := NewValue(TypeHash, EncListpack, newHashPayload())
	hp := v.payload.(*hashPayload)
	hp.fields["f1"] = []byte("v1")
	expireSubkey(v, "f1")
	_, ok := hp.fields["f1"]
	require.False(t, ok)
}

func TestExpireSubkeyRemovesZSetMember(t *testing.T) {
	v := NewValue(TypeZSet, EncListpack, newZSetPayload())
	zp := v.payload.(*zsetPayload)
	zp.add([]byte("m"), 1)
	expireSubkey(v, "m")
	_, ok := zp.score([]byte("m"))
	require.False(t, ok)
}

func TestAppendReadLPRoundTrip(t *testing.T) {
	buf := appendLP(nil, []byte("hello"))
	buf = appendLP(buf, []byte("world"))
	first, rest := readLP(buf)
	require.Equal(t, []byte("hello"), first)
	second, rest := readLP(rest)
	require.Equal(t, []byte("world"), second)
	require.Empty(t, rest)
}
