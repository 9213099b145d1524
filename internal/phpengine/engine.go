package phpengine

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sadewadee/phpbridge/internal/bridge"
)

// ErrNotStarted is returned by calls made before Startup or after Shutdown.
var ErrNotStarted = errors.New("engine not started")

// Function is an entry in the engine's function table. Params names the
// parameters so that named arguments can be bound; a function without
// Params accepts only positional arguments.
type Function struct {
	Name   string
	Params []string
	Fn     NativeFunc
}

// NamedArg is a named argument passed to Call.
type NamedArg struct {
	Name  string
	Value Zval
}

// Engine represents an embedded PHP interpreter instance.
type Engine struct {
	version  string
	threadID int32
	logger   *slog.Logger

	mu       sync.RWMutex
	started  bool
	onThread func() bool

	fnMu      sync.RWMutex
	functions map[string]*Function

	channel    *bridge.Channel
	extensions *ExtensionManager
}

// NewEngine creates a new embedded PHP engine for the specified version.
// Valid versions: 7.4, 8.0, 8.1, 8.2, 8.3, 8.4
func NewEngine(version string, logger *slog.Logger) (*Engine, error) {
	if !ValidVersion(version) {
		return nil, fmt.Errorf("unsupported PHP version: %s", version)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		version:   version,
		threadID:  getThreadID(),
		logger:    logger,
		functions: make(map[string]*Function),
	}, nil
}

// Version returns the PHP version this engine uses.
func (e *Engine) Version() string {
	return e.version
}

// SetExtensions sets the extension manager loaded on Startup.
func (e *Engine) SetExtensions(em *ExtensionManager) {
	e.extensions = em
}

// SetChannel attaches the call channel used by the callbacks extension.
// Registered closures are released on Shutdown.
func (e *Engine) SetChannel(ch *bridge.Channel) {
	e.channel = ch
}

// Channel returns the attached call channel, or nil.
func (e *Engine) Channel() *bridge.Channel {
	return e.channel
}

// Startup initializes the PHP interpreter and loads its extensions.
func (e *Engine) Startup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	if e.extensions != nil {
		if err := e.extensions.LoadExtensions(e); err != nil {
			e.resetFunctions()
			return fmt.Errorf("loading extensions: %w", err)
		}
	}

	e.started = true
	e.logger.Info("php engine started", "version", e.version, "functions", len(e.FunctionNames()))
	return nil
}

// Shutdown cleans up the PHP interpreter. Closures still registered with
// the attached channel are released.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}

	if e.channel != nil {
		if n := e.channel.Registry().Clear(); n > 0 {
			e.logger.Debug("released registered closures", "count", n)
		}
	}
	if e.extensions != nil {
		e.extensions.UnloadAll()
	}
	e.resetFunctions()

	e.started = false
	e.logger.Info("php engine stopped", "version", e.version)
	return nil
}

// Started reports whether the engine is between Startup and Shutdown.
func (e *Engine) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

func (e *Engine) setThreadGuard(onThread func() bool) {
	e.mu.Lock()
	e.onThread = onThread
	e.mu.Unlock()
}

// Define adds a function to the function table. Names are
// case-insensitive and may not be redeclared.
func (e *Engine) Define(fn Function) error {
	if fn.Name == "" || fn.Fn == nil {
		return errors.New("function needs a name and a body")
	}
	key := functionKey(fn.Name)

	e.fnMu.Lock()
	defer e.fnMu.Unlock()
	if _, exists := e.functions[key]; exists {
		return fmt.Errorf("cannot redeclare %s()", fn.Name)
	}
	e.functions[key] = &fn
	return nil
}

// Lookup finds a function by name.
func (e *Engine) Lookup(name string) (*Function, bool) {
	e.fnMu.RLock()
	defer e.fnMu.RUnlock()
	fn, ok := e.functions[functionKey(name)]
	return fn, ok
}

// FunctionNames returns the defined function names, sorted.
func (e *Engine) FunctionNames() []string {
	e.fnMu.RLock()
	defer e.fnMu.RUnlock()
	names := make([]string, 0, len(e.functions))
	for _, fn := range e.functions {
		names = append(names, fn.Name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) resetFunctions() {
	e.fnMu.Lock()
	e.functions = make(map[string]*Function)
	e.fnMu.Unlock()
}

func functionKey(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, `\`))
}

// IsCallable reports whether z can be called: a closure, the name of a
// defined function, or a [class, method] pair naming a defined
// "Class::method".
func (e *Engine) IsCallable(z Zval) bool {
	switch x := z.(type) {
	case *Closure:
		return x != nil && x.fn != nil
	case string:
		_, ok := e.Lookup(x)
		return ok
	case *Array:
		name, ok := methodName(x)
		if !ok {
			return false
		}
		_, ok = e.Lookup(name)
		return ok
	}
	return false
}

func methodName(a *Array) (string, bool) {
	if a == nil || a.Len() != 2 || !a.IsList() {
		return "", false
	}
	vals := a.Values()
	class, ok1 := vals[0].(string)
	method, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return "", false
	}
	return class + "::" + method, true
}

// Call invokes a defined function by name. Exceptions thrown by the
// function, including panics, are returned as *Exception.
func (e *Engine) Call(name string, args []Zval, named []NamedArg) (Zval, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	fn, ok := e.Lookup(name)
	if !ok {
		return nil, Throw("Error", "Call to undefined function %s()", name)
	}
	bound, err := bindNamed(fn, args, named)
	if err != nil {
		return nil, err
	}
	return e.invoke(fn.Name, fn.Fn, bound)
}

// CallValue invokes any callable value with positional arguments.
func (e *Engine) CallValue(callable Zval, args []Zval) (Zval, error) {
	switch x := callable.(type) {
	case *Closure:
		if x == nil || x.fn == nil {
			break
		}
		if err := e.enter(); err != nil {
			return nil, err
		}
		return e.invoke(x.name, x.fn, args)
	case string:
		return e.Call(x, args, nil)
	case *Array:
		if name, ok := methodName(x); ok {
			return e.Call(name, args, nil)
		}
	}
	return nil, Throw("TypeError", "Argument #1 ($callback) must be a valid callback, %s given", TypeName(callable))
}

func (e *Engine) enter() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return ErrNotStarted
	}
	if e.onThread != nil && !e.onThread() {
		return bridge.ErrNotInterpreterThread
	}
	return nil
}

func (e *Engine) invoke(name string, fn NativeFunc, args []Zval) (ret Zval, err error) {
	defer func() {
		if r := recover(); r != nil {
			ret = nil
			err = Throw("Error", "%s(): %v", name, r)
			e.logger.Error("native function panicked", "function", name, "panic", r)
		}
	}()

	ret, err = fn(e, args)
	if err != nil {
		return nil, asException(err)
	}
	return ret, nil
}

func bindNamed(fn *Function, args []Zval, named []NamedArg) ([]Zval, error) {
	if len(named) == 0 {
		return args, nil
	}
	bound := append([]Zval(nil), args...)
	set := make([]bool, len(fn.Params))
	for i := range args {
		if i < len(set) {
			set[i] = true
		}
	}
	for _, na := range named {
		pos := -1
		for i, p := range fn.Params {
			if p == na.Name {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, Throw("Error", "Unknown named parameter $%s", na.Name)
		}
		// Covers both a positional argument and an earlier named one.
		if set[pos] {
			return nil, Throw("Error", "Named parameter $%s overwrites previous argument", na.Name)
		}
		set[pos] = true
		for len(bound) <= pos {
			bound = append(bound, nil)
		}
		bound[pos] = na.Value
	}
	for i := len(args); i < len(bound); i++ {
		if !set[i] {
			return nil, Throw("ArgumentCountError", "%s(): Argument #%d ($%s) not passed", fn.Name, i+1, fn.Params[i])
		}
	}
	return bound, nil
}

// ThreadID returns the id used to tag this engine's PHP log records.
func (e *Engine) ThreadID() int32 {
	return e.threadID
}

// MemoryStats returns current memory usage
func (e *Engine) MemoryStats() (alloc, total uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc, m.Sys
}
