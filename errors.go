package treedb

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error kind. The numeric values are stable and
// disjoint from the engine's own codes: Ok is zero, everything else is
// negative.
type Code int32

const (
	Ok              Code = 0
	Generic         Code = -3000
	InvalidArgument Code = -3001
	OutOfMemory     Code = -3002
	KeyExists       Code = -3003
	NotFound        Code = -3004
	MapFull         Code = -3005
	TxnFull         Code = -3006
	IndexError      Code = -3007
)

// CodeString returns a short human-readable name for a code, in the
// manner of strerror.
func CodeString(c Code) string {
	switch c {
	case Ok:
		return "ok"
	case Generic:
		return "generic error"
	case InvalidArgument:
		return "invalid argument"
	case OutOfMemory:
		return "out of memory"
	case KeyExists:
		return "key already exists"
	case NotFound:
		return "not found"
	case MapFull:
		return "database map is full"
	case TxnFull:
		return "transaction is full"
	case IndexError:
		return "index error"
	default:
		return fmt.Sprintf("unknown error code %d", int32(c))
	}
}

// Error carries a code, an optional tree/index context and a contextual
// message. The message is a best-effort diagnostic, not a programmatic
// interface; match on Code (via CodeOf) instead.
type Error struct {
	Code  Code
	Tree  string
	Index string
	Msg   string
	Err   error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	var buf strings.Builder
	if e.Tree != "" {
		buf.WriteString(e.Tree)
		if e.Index != "" {
			buf.WriteByte('.')
			buf.WriteString(e.Index)
		}
		buf.WriteString(": ")
	}
	buf.WriteString(CodeString(e.Code))
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

func errf(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

func treeErrf(tree, index string, code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Tree: tree, Index: index, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the error code from err. A nil error is Ok; an error
// that does not wrap *Error is Generic.
func CodeOf(err error) Code {
	if err == nil {
		return Ok
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Generic
}

// Recoverable reports whether the caller may grow the map and retry the
// failed transaction. All other failures are fatal at the transaction
// level.
func Recoverable(err error) bool {
	switch CodeOf(err) {
	case MapFull, TxnFull:
		return true
	}
	return false
}

// translateEngineErr wraps an engine-level error into the package
// taxonomy. Errors already carrying a code pass through unchanged.
func translateEngineErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	code := Generic
	switch {
	case errors.Is(err, ErrReadOnlyTx):
		code = InvalidArgument
	case errors.Is(err, ErrBucketNotFound):
		code = NotFound
	case errors.Is(err, ErrMapFull):
		code = MapFull
	case errors.Is(err, ErrTxnFull):
		code = TxnFull
	case errors.Is(err, ErrUnsupported):
		code = Generic
	}
	return errf(code, err, format, args...)
}
