package phpengine

import (
	"golang.org/x/sync/errgroup"

	"github.com/sadewadee/phpbridge/internal/bridge"
)

// CallbacksExtension exposes the engine's call channel to PHP code:
// registering closures, queueing calls and draining the queue.
func CallbacksExtension() Extension {
	return Extension{
		Name: "callbacks",
		Functions: []Function{
			{Name: "register_callback", Params: []string{"callback"}, Fn: fnRegisterCallback},
			{Name: "unregister_callback", Params: []string{"id"}, Fn: fnUnregisterCallback},
			{Name: "process_callbacks", Fn: fnProcessCallbacks},
			{Name: "has_pending_callbacks", Fn: fnHasPendingCallbacks},
			{Name: "pending_callback_count", Fn: fnPendingCallbackCount},
			{Name: "registered_closure_count", Fn: fnRegisteredClosureCount},
			{Name: "call_function_sync", Params: []string{"function", "args"}, Fn: fnCallFunctionSync},
			{Name: "call_closure_sync", Params: []string{"id", "args"}, Fn: fnCallClosureSync},
			{Name: "call_function_async", Params: []string{"function", "args"}, Fn: fnCallFunctionAsync},
			{Name: "call_closure_async", Params: []string{"id", "args"}, Fn: fnCallClosureAsync},
			{Name: "parallel_closure_calls", Params: []string{"id", "values"}, Fn: fnParallelClosureCalls},
		},
	}
}

func channelOf(e *Engine, fn string) (*bridge.Channel, error) {
	ch := e.Channel()
	if ch == nil {
		return nil, Throw("Error", "%s(): no call channel attached", fn)
	}
	return ch, nil
}

// serializeArgs converts the values of a PHP array, skipping those with no
// serialized form. The skipped count is recorded on the channel.
func serializeArgs(ch *bridge.Channel, fn string, a *Array) []bridge.Value {
	out := make([]bridge.Value, 0, a.Len())
	dropped := 0
	a.Each(func(_ Key, v Zval) bool {
		if sv, ok := FromNative(v); ok {
			out = append(out, sv)
		} else {
			dropped++
		}
		return true
	})
	ch.NoteDroppedArgs(fn, dropped)
	return out
}

func fnRegisterCallback(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("register_callback", args, 1, 1); err != nil {
		return nil, err
	}
	ch, err := channelOf(e, "register_callback")
	if err != nil {
		return nil, err
	}
	id, ok := ch.Registry().Register(args[0])
	if !ok {
		return nil, &Exception{
			Class:    "TypeError",
			Message:  "register_callback(): Argument #1 ($callback) must be a valid callback, " + TypeName(args[0]) + " given",
			Previous: bridge.ErrNotCallable,
		}
	}
	return int64(id.Uint64()), nil
}

func fnUnregisterCallback(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("unregister_callback", args, 1, 1); err != nil {
		return nil, err
	}
	id, err := argInt("unregister_callback", args, 0)
	if err != nil {
		return nil, err
	}
	ch, err := channelOf(e, "unregister_callback")
	if err != nil {
		return nil, err
	}
	return ch.Registry().Unregister(bridge.ClosureIDFromUint64(uint64(id))), nil
}

func fnProcessCallbacks(e *Engine, _ []Zval) (Zval, error) {
	ch, err := channelOf(e, "process_callbacks")
	if err != nil {
		return nil, err
	}
	n, err := ch.Drain()
	if err != nil {
		return nil, err
	}
	return int64(n), nil
}

func fnHasPendingCallbacks(e *Engine, _ []Zval) (Zval, error) {
	ch, err := channelOf(e, "has_pending_callbacks")
	if err != nil {
		return nil, err
	}
	return ch.HasPending(), nil
}

func fnPendingCallbackCount(e *Engine, _ []Zval) (Zval, error) {
	ch, err := channelOf(e, "pending_callback_count")
	if err != nil {
		return nil, err
	}
	return int64(ch.PendingCount()), nil
}

func fnRegisteredClosureCount(e *Engine, _ []Zval) (Zval, error) {
	ch, err := channelOf(e, "registered_closure_count")
	if err != nil {
		return nil, err
	}
	return int64(ch.Registry().Len()), nil
}

// syncCall drains the channel until h is done, so a handle queued from
// the interpreter thread can be waited on without deadlocking. With a
// drain limit the handle may sit behind a backlog for several drains.
func syncCall(ch *bridge.Channel, h *bridge.Handle, what string) (Zval, error) {
	for h.State() == bridge.StatePending {
		n, err := ch.Drain()
		if err != nil {
			return nil, err
		}
		if n == 0 && h.State() == bridge.StatePending {
			return nil, &Exception{Class: "Error", Message: what + " was not drained"}
		}
	}
	v, err := h.Wait()
	if err != nil {
		return nil, &Exception{Class: "Exception", Message: what + " failed: " + err.Error(), Previous: err}
	}
	return ToNative(v)
}

func fnCallFunctionSync(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("call_function_sync", args, 2, 2); err != nil {
		return nil, err
	}
	name, err := argString("call_function_sync", args, 0)
	if err != nil {
		return nil, err
	}
	list, err := argArray("call_function_sync", args, 1)
	if err != nil {
		return nil, err
	}
	ch, err := channelOf(e, "call_function_sync")
	if err != nil {
		return nil, err
	}
	h := ch.QueueCall(name, serializeArgs(ch, name, list))
	return syncCall(ch, h, "Call")
}

func fnCallClosureSync(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("call_closure_sync", args, 2, 2); err != nil {
		return nil, err
	}
	id, err := argInt("call_closure_sync", args, 0)
	if err != nil {
		return nil, err
	}
	list, err := argArray("call_closure_sync", args, 1)
	if err != nil {
		return nil, err
	}
	ch, err := channelOf(e, "call_closure_sync")
	if err != nil {
		return nil, err
	}
	h := ch.QueueClosureCall(bridge.ClosureIDFromUint64(uint64(id)), serializeArgs(ch, "call_closure_sync", list))
	return syncCall(ch, h, "Closure call")
}

// The async variants only queue; results are produced by the next
// process_callbacks() or pump tick and are not reported back.

func fnCallFunctionAsync(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("call_function_async", args, 2, 2); err != nil {
		return nil, err
	}
	name, err := argString("call_function_async", args, 0)
	if err != nil {
		return nil, err
	}
	list, err := argArray("call_function_async", args, 1)
	if err != nil {
		return nil, err
	}
	ch, err := channelOf(e, "call_function_async")
	if err != nil {
		return nil, err
	}
	ch.QueueCall(name, serializeArgs(ch, name, list))
	return true, nil
}

func fnCallClosureAsync(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("call_closure_async", args, 2, 2); err != nil {
		return nil, err
	}
	id, err := argInt("call_closure_async", args, 0)
	if err != nil {
		return nil, err
	}
	list, err := argArray("call_closure_async", args, 1)
	if err != nil {
		return nil, err
	}
	ch, err := channelOf(e, "call_closure_async")
	if err != nil {
		return nil, err
	}
	ch.QueueClosureCall(bridge.ClosureIDFromUint64(uint64(id)), serializeArgs(ch, "call_closure_async", list))
	return true, nil
}

// fnParallelClosureCalls queues one call per value, each from its own
// goroutine, and returns once all of them are queued.
func fnParallelClosureCalls(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("parallel_closure_calls", args, 2, 2); err != nil {
		return nil, err
	}
	raw, err := argInt("parallel_closure_calls", args, 0)
	if err != nil {
		return nil, err
	}
	values, err := argArray("parallel_closure_calls", args, 1)
	if err != nil {
		return nil, err
	}
	ch, err := channelOf(e, "parallel_closure_calls")
	if err != nil {
		return nil, err
	}

	id := bridge.ClosureIDFromUint64(uint64(raw))
	serialized := serializeArgs(ch, "parallel_closure_calls", values)

	var g errgroup.Group
	for _, v := range serialized {
		v := v
		g.Go(func() error {
			ch.QueueClosureCall(id, []bridge.Value{v})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return int64(len(serialized)), nil
}
