package lisp

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrMalformedValue   = errors.New("malformed value")
	ErrAbiMismatch      = errors.New("abi mismatch")
	ErrRootReleased     = errors.New("root token already released")
	ErrNotReady         = errors.New("primitive registration not complete")
	ErrUnknownPrimitive = errors.New("unknown primitive")
	ErrDetached         = errors.New("environment detached from host")
)

// MalformedValueError reports a word that violates the tag/payload
// invariants. It indicates an encoding or ABI bug and is fatal when it
// reaches the primitive boundary.
type MalformedValueError struct {
	Word   Word
	Reason string
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("malformed value 0x%x: %s", uint64(e.Word), e.Reason)
}

func (e *MalformedValueError) Is(target error) bool {
	return target == ErrMalformedValue
}

// AbiMismatchError reports a host layout that disagrees with the compiled-in
// one. Always fatal.
type AbiMismatchError struct {
	Field string
	Want  any
	Got   any
}

func (e *AbiMismatchError) Error() string {
	return fmt.Sprintf("abi mismatch on %s: compiled %v, host %v", e.Field, e.Want, e.Got)
}

func (e *AbiMismatchError) Is(target error) bool {
	return target == ErrAbiMismatch
}

// TypeMismatchError reports an argument whose tag does not match the
// projection. Position is the argument index, or -1 outside a call.
type TypeMismatchError struct {
	Expected string
	Found    Tag
	Value    Object
	Position int
}

func (e *TypeMismatchError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("wrong type argument %d: %s, got %s", e.Position, e.Expected, e.Value)
	}
	return fmt.Sprintf("wrong type argument: %s, got %s", e.Expected, e.Value)
}

// WrongNumberOfArgumentsError reports an arity violation. Max is Many for
// primitives without an upper bound.
type WrongNumberOfArgumentsError struct {
	Name string
	Min  int
	Max  int
	Got  int
}

func (e *WrongNumberOfArgumentsError) Error() string {
	upper := fmt.Sprint(e.Max)
	if e.Max == Many {
		upper = "many"
	}
	return fmt.Sprintf("%s: wrong number of arguments (%d . %s), %d", e.Name, e.Min, upper, e.Got)
}

// RangeError reports a value outside the range an operation accepts. When
// Value is an Object (an array indexed at Index) the host sees
// args-out-of-range, otherwise overflow-error.
type RangeError struct {
	Op    string
	Value any
	Index int64
	Min   int64
	Max   int64
}

func (e *RangeError) Error() string {
	if _, ok := e.Value.(Object); ok {
		return fmt.Sprintf("%s: index %d out of range [%d, %d]", e.Op, e.Index, e.Min, e.Max)
	}
	return fmt.Sprintf("%s: %v out of range [%d, %d]", e.Op, e.Value, e.Min, e.Max)
}

// StaleHandleError is the panic value raised when a Local is read after the
// host collected.
type StaleHandleError struct {
	Value   Object
	Created uint64
	Now     uint64
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("stale handle %s: created at gc epoch %d, read at %d", e.Value, e.Created, e.Now)
}

// FatalError wraps an error that must abort the process rather than cross
// into the host as a signal.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal logs err and panics with a *FatalError. The export glue re-raises
// these instead of converting them to signals.
func Fatal(err error) {
	log.Criticalf("%s", err)
	panic(&FatalError{Err: err})
}

// isFatal reports whether err belongs to an unrecoverable class.
func isFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe) || errors.Is(err, ErrMalformedValue) || errors.Is(err, ErrAbiMismatch)
}
