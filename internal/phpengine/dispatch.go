package phpengine

import (
	"github.com/sadewadee/phpbridge/internal/bridge"
)

// Dispatcher runs bridge requests against an Engine. It converts the
// arguments to native values, calls the target and converts the result
// back.
type Dispatcher struct {
	engine *Engine
}

// NewDispatcher creates a dispatcher for e.
func NewDispatcher(e *Engine) *Dispatcher {
	return &Dispatcher{engine: e}
}

// IsCallable reports whether ref may be registered as a closure.
func (d *Dispatcher) IsCallable(ref any) bool {
	return d.engine.IsCallable(ref)
}

// Dispatch executes req. It runs on the interpreter thread.
func (d *Dispatcher) Dispatch(req *bridge.Request, callable any) (bridge.Value, error) {
	args := make([]Zval, len(req.Args))
	for i, a := range req.Args {
		z, err := toNative(a, 0)
		if err != nil {
			return bridge.Value{}, bridge.ArgConversionError(i, err.Error())
		}
		args[i] = z
	}

	var named []NamedArg
	for _, na := range req.Named {
		z, err := toNative(na.Value, 0)
		if err != nil {
			return bridge.Value{}, bridge.NamedConversionError(na.Name, err.Error())
		}
		named = append(named, NamedArg{Name: na.Name, Value: z})
	}

	var ret Zval
	var err error
	if req.Target.IsClosure() {
		if len(named) > 0 {
			return bridge.Value{}, &bridge.InvocationError{
				Target: req.Target,
				Err:    Throw("Error", "Unknown named parameter $%s", named[0].Name),
			}
		}
		ret, err = d.engine.CallValue(callable, args)
	} else {
		if _, ok := d.engine.Lookup(req.Target.Function); !ok {
			return bridge.Value{}, &bridge.UnknownTargetError{Target: req.Target}
		}
		ret, err = d.engine.Call(req.Target.Function, args, named)
	}
	if err != nil {
		return bridge.Value{}, &bridge.InvocationError{Target: req.Target, Err: err}
	}

	v, ok := FromNative(ret)
	if !ok {
		return bridge.Value{}, bridge.ResultConversionError(TypeName(ret) + " has no serialized form")
	}
	return v, nil
}
