package bridge

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrConversion matches any *ConversionError.
	ErrConversion = errors.New("value conversion failed")
	// ErrUnknownTarget matches any *UnknownTargetError.
	ErrUnknownTarget = errors.New("unknown call target")
	// ErrInvocation matches any *InvocationError.
	ErrInvocation = errors.New("call failed")
	// ErrNotCallable is returned by wrappers around Registry.Register when
	// the value is not callable.
	ErrNotCallable = errors.New("value is not callable")
	// ErrNotInterpreterThread is returned by Drain when called off the
	// interpreter thread.
	ErrNotInterpreterThread = errors.New("not on the interpreter thread")
	// ErrWaitTimeout is returned by Handle.WaitTimeout when the deadline
	// passes before the request is drained.
	ErrWaitTimeout = errors.New("timed out waiting for call result")
	// ErrChannelClosed fails calls queued after Channel.Close.
	ErrChannelClosed = errors.New("channel closed")
)

// ConversionError reports a value that could not cross the boundary. Index
// is the positional argument index, Name the named argument, and both are
// unset for a return value.
type ConversionError struct {
	Index  int
	Name   string
	Reason string
}

// ArgConversionError builds a ConversionError for positional argument i.
func ArgConversionError(i int, reason string) *ConversionError {
	return &ConversionError{Index: i, Reason: reason}
}

// NamedConversionError builds a ConversionError for a named argument.
func NamedConversionError(name, reason string) *ConversionError {
	return &ConversionError{Index: -1, Name: name, Reason: reason}
}

// ResultConversionError builds a ConversionError for a return value.
func ResultConversionError(reason string) *ConversionError {
	return &ConversionError{Index: -1, Reason: reason}
}

func (e *ConversionError) Error() string {
	switch {
	case e.Name != "":
		return fmt.Sprintf("converting argument $%s: %s", e.Name, e.Reason)
	case e.Index >= 0:
		return fmt.Sprintf("converting argument %d: %s", e.Index, e.Reason)
	}
	return "converting return value: " + e.Reason
}

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

// UnknownTargetError reports a function name that does not exist or a
// closure id that is not registered.
type UnknownTargetError struct {
	Target Target
}

func (e *UnknownTargetError) Error() string {
	if e.Target.IsClosure() {
		return fmt.Sprintf("closure %s not found in registry", e.Target.Closure)
	}
	return fmt.Sprintf("call to undefined function %s()", e.Target.Function)
}

func (e *UnknownTargetError) Is(target error) bool { return target == ErrUnknownTarget }

// InvocationError wraps an exception or panic raised by the call itself.
type InvocationError struct {
	Target Target
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("calling %s: %v", e.Target, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

func (e *InvocationError) Is(target error) bool { return target == ErrInvocation }

// CallError is the error delivered through a Handle that failed.
type CallError struct {
	RequestID uint64
	Err       error
}

func (e *CallError) Error() string {
	return "request " + strconv.FormatUint(e.RequestID, 10) + ": " + e.Err.Error()
}

func (e *CallError) Unwrap() error { return e.Err }
