package kvcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorStringIncludesTokenAndStripsNewlines(t *testing.T) {
	e := newErr(TypeError, "WRONGTYPE", "bad %s\nvalue", "thing")
	require.Equal(t, "WRONGTYPE bad thing value", e.Error())
}

func TestErrorStringOmitsTokenWhenEmpty(t *testing.T) {
	e := newErr(NotFoundError, "", "no such key")
	require.Equal(t, "no such key", e.Error())
}

func TestWrongTypeForNamesCommandInCause(t *testing.T) {
	e := wrongTypeFor("GET")
	require.Equal(t, ErrWrongType.Kind, e.Kind)
	require.Equal(t, ErrWrongType.Token, e.Token)
	require.ErrorContains(t, errors.Unwrap(e), "GET")
	// mutating the returned copy must not affect the shared sentinel.
	require.NotSame(t, ErrWrongType, e)
}

func TestInternalErrCarriesCauseAndInternalKind(t *testing.T) {
	e := internalErr("boom %d", 7)
	require.Equal(t, InternalError, e.Kind)
	require.NotNil(t, errors.Unwrap(e))
	require.Contains(t, e.Error(), "boom 7")
}

func TestErrorKindStringNames(t *testing.T) {
	require.Equal(t, "ProtocolError", ProtocolError.String())
	require.Equal(t, "UnknownError", ErrorKind(999).String())
}
