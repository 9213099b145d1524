package phpengine

import (
	"errors"
	"fmt"
)

// Zval is a native interpreter value: nil, bool, int64, float64, string,
// *Array, *Closure, *Resource or *Object.
type Zval = any

// NativeFunc implements a function or closure body.
type NativeFunc func(e *Engine, args []Zval) (Zval, error)

// Closure is a callable value.
type Closure struct {
	name string
	fn   NativeFunc
}

// NewClosure wraps fn as a closure. name is only used in messages.
func NewClosure(name string, fn NativeFunc) *Closure {
	if name == "" {
		name = "{closure}"
	}
	return &Closure{name: name, fn: fn}
}

// Name returns the closure's display name.
func (c *Closure) Name() string { return c.name }

// Resource is an opaque handle such as a stream.
type Resource struct {
	Type string
	ID   int
}

// Object is a class instance.
type Object struct {
	Class string
	Props *Array
}

// Exception is a throwable raised by a native function.
type Exception struct {
	Class    string
	Message  string
	Previous error
}

// Throw builds an exception of the given class.
func Throw(class, format string, args ...any) *Exception {
	return &Exception{Class: class, Message: fmt.Sprintf(format, args...)}
}

func (e *Exception) Error() string {
	return e.Class + ": " + e.Message
}

func (e *Exception) Unwrap() error { return e.Previous }

// asException turns any error into an exception. Plain Go errors become
// instances of Error.
func asException(err error) *Exception {
	var ex *Exception
	if errors.As(err, &ex) {
		return ex
	}
	return &Exception{Class: "Error", Message: err.Error(), Previous: err}
}

// TypeName returns the PHP type name of z, as get_debug_type would.
func TypeName(z Zval) string {
	switch x := z.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64, int:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case *Array:
		return "array"
	case *Closure:
		return "Closure"
	case *Resource:
		return "resource (" + x.Type + ")"
	case *Object:
		return x.Class
	}
	return fmt.Sprintf("%T", z)
}
