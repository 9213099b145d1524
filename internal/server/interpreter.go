package server

// Interpreter is the part of the interpreter thread the server reports on.
type Interpreter interface {
	Running() bool
	Pumped() int64
}
