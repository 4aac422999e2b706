package kvcore

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind is the taxonomy from spec.md §7. Every error the executor hands
// back to a caller carries one of these.
type ErrorKind int

const (
	ProtocolError ErrorKind = iota + 1
	TypeError
	PermissionError
	NotFoundError
	ResourceError
	TransientStateError
	RedirectError
	InternalError
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolError:
		return "ProtocolError"
	case TypeError:
		return "TypeError"
	case PermissionError:
		return "PermissionError"
	case NotFoundError:
		return "NotFoundError"
	case ResourceError:
		return "ResourceError"
	case TransientStateError:
		return "TransientStateError"
	case RedirectError:
		return "RedirectError"
	case InternalError:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Error is a command-boundary error: a Kind, a wire Token (the leading
// token a RESP error reply carries, e.g. WRONGTYPE, NOAUTH, MOVED), a
// human-readable message with no embedded newlines, and for InternalError an
// optional stack-carrying cause.
type Error struct {
	Kind  ErrorKind
	Token string
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.Token == "" {
		return e.Msg
	}
	return e.Token + " " + stripNewlines(e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			out = append(out, ' ')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func newErr(kind ErrorKind, token, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Token: token, Msg: fmt.Sprintf(format, args...)}
}

// Well-known errors, named after the tokens collaborators parse (spec.md §6).
var (
	ErrWrongType   = newErr(TypeError, "WRONGTYPE", "Operation against a key holding the wrong kind of value")
	ErrNoSuchKey   = newErr(NotFoundError, "", "no such key")
	ErrNotInt      = newErr(TypeError, "", "value is not an integer or out of range")
	ErrSyntax      = newErr(ProtocolError, "ERR", "syntax error")
	ErrWrongArity  = newErr(ProtocolError, "ERR", "wrong number of arguments")
	ErrOOM         = newErr(ResourceError, "OOM", "command not allowed when used memory > 'maxmemory'")
	ErrExecAbort   = newErr(ProtocolError, "EXECABORT", "Transaction discarded because of previous errors")
	ErrNoAuth      = newErr(PermissionError, "NOAUTH", "Authentication required")
	ErrNoPerm      = newErr(PermissionError, "NOPERM", "this user has no permissions to run this command")
	ErrLoading     = newErr(TransientStateError, "LOADING", "Redis is loading the dataset in memory")
	ErrReadOnly    = newErr(TransientStateError, "READONLY", "You can't write against a read only replica")
	ErrClusterDown = newErr(TransientStateError, "CLUSTERDOWN", "The cluster is down")
	ErrBusy        = newErr(TransientStateError, "BUSY", "server is busy running a script")
	ErrMasterDown  = newErr(TransientStateError, "MASTERDOWN", "Link with MASTER is down")
	ErrMisconf     = newErr(ResourceError, "MISCONF", "server is configured to save RDB snapshots, but is currently unable to persist")
	ErrNoReplicas  = newErr(ResourceError, "NOREPLICAS", "Not enough good replicas to write")
	ErrNoScript    = newErr(NotFoundError, "NOSCRIPT", "No matching script")
)

// wrongTypeFor returns a WRONGTYPE error naming the command for log/debug
// context without embedding it in the wire message (spec.md §7's
// human-readable suffix rule).
func wrongTypeFor(cmd string) *Error {
	e := *ErrWrongType
	e.cause = errors.Errorf("command %s against wrong type", cmd)
	return &e
}

// internalErr wraps cause with a stack trace (pkg/errors) and marks it
// InternalError per spec.md §7(8). Dispatcher.runOne logs it at WARNING;
// nothing aborts the process (Config.CrashOnInvariantViolation is not read).
func internalErr(format string, args ...interface{}) *Error {
	cause := errors.Errorf(format, args...)
	return &Error{Kind: InternalError, Token: "ERR", Msg: cause.Error(), cause: cause}
}
