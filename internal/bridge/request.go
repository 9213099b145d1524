package bridge

import "strconv"

// ClosureID identifies a callable stored in a Registry. It is a plain
// integer and may be passed freely between goroutines or into PHP.
type ClosureID uint64

// ClosureIDFromUint64 rebuilds an id previously obtained from Uint64.
func ClosureIDFromUint64(id uint64) ClosureID { return ClosureID(id) }

// Uint64 returns the raw id.
func (id ClosureID) Uint64() uint64 { return uint64(id) }

func (id ClosureID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// Target is what a Request calls: a function by name or a registered
// closure by id.
type Target struct {
	Function string
	Closure  ClosureID
	closure  bool
}

// ByName targets the named function.
func ByName(function string) Target {
	return Target{Function: function}
}

// ByClosure targets a registered closure.
func ByClosure(id ClosureID) Target {
	return Target{Closure: id, closure: true}
}

// IsClosure reports whether t targets a registered closure.
func (t Target) IsClosure() bool { return t.closure }

func (t Target) String() string {
	if t.closure {
		return "closure " + t.Closure.String()
	}
	return t.Function + "()"
}

// NamedArg is a named argument of a call.
type NamedArg struct {
	Name  string
	Value Value
}

// Request is a queued call. It is never modified after it is enqueued.
type Request struct {
	ID     uint64
	Target Target
	Args   []Value
	Named  []NamedArg
}
