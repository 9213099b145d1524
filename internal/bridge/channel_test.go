package bridge_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/sadewadee/phpbridge/internal/bridge"
)

type fakeFunc func(args []bridge.Value, named []bridge.NamedArg) (bridge.Value, error)

// fakeDispatcher stands in for the interpreter: named functions live in a
// map and registered closures are fakeFuncs.
type fakeDispatcher struct {
	mu    sync.Mutex
	funcs map[string]fakeFunc
	log   []string
}

func newFakeDispatcher() *fakeDispatcher {
	d := &fakeDispatcher{funcs: make(map[string]fakeFunc)}
	d.define("identity", func(args []bridge.Value, _ []bridge.NamedArg) (bridge.Value, error) {
		if len(args) == 0 {
			return bridge.Null(), nil
		}
		return args[0], nil
	})
	return d
}

func (d *fakeDispatcher) define(name string, fn fakeFunc) {
	d.mu.Lock()
	d.funcs[name] = fn
	d.mu.Unlock()
}

func (d *fakeDispatcher) IsCallable(ref any) bool {
	_, ok := ref.(fakeFunc)
	return ok
}

func (d *fakeDispatcher) Dispatch(req *bridge.Request, callable any) (bridge.Value, error) {
	d.mu.Lock()
	d.log = append(d.log, req.Target.String())
	fn, ok := d.funcs[req.Target.Function]
	d.mu.Unlock()

	if req.Target.IsClosure() {
		return callable.(fakeFunc)(req.Args, req.Named)
	}
	if !ok {
		return bridge.Value{}, &bridge.UnknownTargetError{Target: req.Target}
	}
	return fn(req.Args, req.Named)
}

func (d *fakeDispatcher) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

func TestChannelIdentityEndToEnd(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher())

	h := ch.QueueCall("identity", []bridge.Value{bridge.Int(42)})
	if n := ch.ProcessPending(); n != 1 {
		t.Fatalf("ProcessPending: got %d, want 1", n)
	}

	v, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !v.Equal(bridge.Int(42)) {
		t.Errorf("got %s, want 42", v)
	}
}

func TestChannelQueueCounts(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher())

	if ch.HasPending() || ch.PendingCount() != 0 {
		t.Fatal("new channel should be empty")
	}
	ch.QueueCall("identity", nil)
	ch.QueueClosureCall(bridge.ClosureIDFromUint64(42), []bridge.Value{bridge.String("arg")})

	if !ch.HasPending() || ch.PendingCount() != 2 {
		t.Fatalf("PendingCount: got %d, want 2", ch.PendingCount())
	}
	ch.ProcessPending()
	if ch.HasPending() {
		t.Error("queue should be empty after drain")
	}
}

func TestChannelFIFOOrder(t *testing.T) {
	d := newFakeDispatcher()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		d.define(name, func([]bridge.Value, []bridge.NamedArg) (bridge.Value, error) {
			order = append(order, name)
			return bridge.String(name), nil
		})
	}
	ch := bridge.NewChannel(d)

	ha := ch.QueueCall("a", nil)
	hb := ch.QueueCall("b", nil)
	hc := ch.QueueCall("c", nil)

	if n := ch.ProcessPending(); n != 3 {
		t.Fatalf("ProcessPending: got %d, want 3", n)
	}
	if fmt.Sprint(order) != "[a b c]" {
		t.Errorf("dispatch order: got %v", order)
	}
	for i, h := range []*bridge.Handle{ha, hb, hc} {
		if h.State() != bridge.StateCompleted {
			t.Errorf("handle %d: state %s", i, h.State())
		}
	}
}

func TestChannelUnknownFunction(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher())

	h := ch.QueueCall("does_not_exist", nil)
	ch.ProcessPending()

	_, err, ok := h.TryPoll()
	if !ok {
		t.Fatal("handle should not be pending after drain")
	}
	if !errors.Is(err, bridge.ErrUnknownTarget) {
		t.Fatalf("expected ErrUnknownTarget, got %v", err)
	}
	if h.State() != bridge.StateFailed {
		t.Errorf("state: got %s", h.State())
	}
}

func TestChannelDeadClosureID(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher())

	id, ok := ch.Registry().Register(fakeFunc(func([]bridge.Value, []bridge.NamedArg) (bridge.Value, error) {
		return bridge.Bool(true), nil
	}))
	if !ok {
		t.Fatal("register failed")
	}
	if !ch.Registry().Unregister(id) {
		t.Fatal("unregister failed")
	}

	h := ch.QueueClosureCall(id, nil)
	ch.ProcessPending()

	_, err := h.Wait()
	if !errors.Is(err, bridge.ErrUnknownTarget) {
		t.Fatalf("expected ErrUnknownTarget for dead closure, got %v", err)
	}
	if h.State() != bridge.StateFailed {
		t.Errorf("state: got %s", h.State())
	}
}

func TestChannelClosureCall(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher())

	id, _ := ch.Registry().Register(fakeFunc(func(args []bridge.Value, _ []bridge.NamedArg) (bridge.Value, error) {
		x, _ := args[0].AsInt()
		y, _ := args[1].AsInt()
		return bridge.Int(x + y), nil
	}))

	h := ch.QueueClosureCall(id, []bridge.Value{bridge.Int(10), bridge.Int(20)})
	ch.ProcessPending()

	v, err := h.Wait()
	if err != nil || !v.Equal(bridge.Int(30)) {
		t.Fatalf("got %s, %v", v, err)
	}
}

func TestChannelNamedArgs(t *testing.T) {
	d := newFakeDispatcher()
	d.define("greet", func(args []bridge.Value, named []bridge.NamedArg) (bridge.Value, error) {
		if len(args) != 1 || len(named) != 1 || named[0].Name != "suffix" {
			return bridge.Value{}, fmt.Errorf("unexpected arguments %v %v", args, named)
		}
		a, _ := args[0].AsString()
		b, _ := named[0].Value.AsString()
		return bridge.String(a + b), nil
	})
	ch := bridge.NewChannel(d)

	h := ch.QueueCallNamed("greet",
		[]bridge.Value{bridge.String("hello")},
		[]bridge.NamedArg{{Name: "suffix", Value: bridge.String("!")}},
	)
	ch.ProcessPending()

	v, err := h.Wait()
	if err != nil || !v.Equal(bridge.String("hello!")) {
		t.Fatalf("got %s, %v", v, err)
	}
}

func TestChannelClosureCallNamed(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher())

	id, _ := ch.Registry().Register(fakeFunc(func(args []bridge.Value, named []bridge.NamedArg) (bridge.Value, error) {
		if len(named) != 1 || named[0].Name != "times" {
			return bridge.Value{}, fmt.Errorf("unexpected named arguments %v", named)
		}
		x, _ := args[0].AsInt()
		n, _ := named[0].Value.AsInt()
		return bridge.Int(x * n), nil
	}))

	named := []bridge.NamedArg{{Name: "times", Value: bridge.Int(3)}}
	h := ch.QueueClosureCallNamed(id, []bridge.Value{bridge.Int(7)}, named)
	named[0].Value = bridge.Int(100)
	ch.ProcessPending()

	v, err := h.Wait()
	if err != nil || !v.Equal(bridge.Int(21)) {
		t.Fatalf("got %s, %v", v, err)
	}
}

func TestChannelClose(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher())

	before := ch.QueueCall("identity", []bridge.Value{bridge.Int(1)})
	ch.Close()
	if !ch.Closed() {
		t.Fatal("Closed should report true after Close")
	}

	after := ch.QueueCall("identity", []bridge.Value{bridge.Int(2)})
	if after.State() != bridge.StateFailed {
		t.Fatalf("call queued after Close: state %v, want failed", after.State())
	}
	if _, err := after.Wait(); !errors.Is(err, bridge.ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
	if ch.PendingCount() != 1 {
		t.Fatalf("PendingCount: got %d, want 1", ch.PendingCount())
	}

	// Requests accepted before Close still run.
	if n := ch.ProcessPending(); n != 1 {
		t.Fatalf("ProcessPending: got %d, want 1", n)
	}
	if v, err := before.Wait(); err != nil || !v.Equal(bridge.Int(1)) {
		t.Fatalf("call queued before Close: got %s, %v", v, err)
	}
	if s := ch.Stats(); s.Queued != 1 || s.Failed != 1 {
		t.Errorf("stats: %+v", s)
	}
}

func TestChannelFailureDoesNotAbortDrain(t *testing.T) {
	d := newFakeDispatcher()
	d.define("throws", func([]bridge.Value, []bridge.NamedArg) (bridge.Value, error) {
		return bridge.Value{}, &bridge.InvocationError{Target: bridge.ByName("throws"), Err: errors.New("boom")}
	})
	d.define("panics", func([]bridge.Value, []bridge.NamedArg) (bridge.Value, error) {
		panic("kaboom")
	})
	ch := bridge.NewChannel(d)

	h1 := ch.QueueCall("throws", nil)
	h2 := ch.QueueCall("panics", nil)
	h3 := ch.QueueCall("identity", []bridge.Value{bridge.Int(1)})

	if n := ch.ProcessPending(); n != 3 {
		t.Fatalf("ProcessPending: got %d, want 3", n)
	}

	for _, h := range []*bridge.Handle{h1, h2} {
		_, err := h.Wait()
		if !errors.Is(err, bridge.ErrInvocation) {
			t.Errorf("expected ErrInvocation, got %v", err)
		}
	}
	if v, err := h3.Wait(); err != nil || !v.Equal(bridge.Int(1)) {
		t.Errorf("third call: got %s, %v", v, err)
	}

	stats := ch.Stats()
	if stats.Failed != 2 || stats.Completed != 1 || stats.Drained != 3 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestChannelArgumentsAreCopiedAtEnqueue(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher())

	args := []bridge.Value{bridge.Int(1)}
	h := ch.QueueCall("identity", args)
	args[0] = bridge.Int(2)
	ch.ProcessPending()

	if v, _ := h.Wait(); !v.Equal(bridge.Int(1)) {
		t.Fatalf("request saw caller mutation: got %s", v)
	}
}

// Requests queued while a drain is running belong to the next drain.
func TestChannelDrainIsBounded(t *testing.T) {
	d := newFakeDispatcher()
	var ch *bridge.Channel
	var late *bridge.Handle
	d.define("enqueue_more", func([]bridge.Value, []bridge.NamedArg) (bridge.Value, error) {
		late = ch.QueueCall("identity", []bridge.Value{bridge.String("late")})
		return bridge.Null(), nil
	})
	ch = bridge.NewChannel(d)

	ch.QueueCall("enqueue_more", nil)
	if n := ch.ProcessPending(); n != 1 {
		t.Fatalf("first drain: got %d, want 1", n)
	}
	if late.State() != bridge.StatePending {
		t.Fatal("request queued during drain should wait for the next drain")
	}
	if n := ch.ProcessPending(); n != 1 {
		t.Fatalf("second drain: got %d, want 1", n)
	}
	if v, _ := late.Wait(); !v.Equal(bridge.String("late")) {
		t.Errorf("late call: got %s", v)
	}
}

func TestChannelNestedDrain(t *testing.T) {
	d := newFakeDispatcher()
	var ch *bridge.Channel
	d.define("sync_call", func(args []bridge.Value, _ []bridge.NamedArg) (bridge.Value, error) {
		h := ch.QueueCall("identity", args)
		ch.ProcessPending()
		return h.Wait()
	})
	ch = bridge.NewChannel(d)

	h := ch.QueueCall("sync_call", []bridge.Value{bridge.Int(5)})
	ch.ProcessPending()

	if v, err := h.Wait(); err != nil || !v.Equal(bridge.Int(5)) {
		t.Fatalf("got %s, %v", v, err)
	}
}

func TestChannelDrainLimit(t *testing.T) {
	ch := bridge.NewChannel(newFakeDispatcher(), bridge.WithDrainLimit(2))

	handles := make([]*bridge.Handle, 5)
	for i := range handles {
		handles[i] = ch.QueueCall("identity", []bridge.Value{bridge.Int(int64(i))})
	}

	if n := ch.ProcessPending(); n != 2 {
		t.Fatalf("first drain: got %d, want 2", n)
	}
	if ch.PendingCount() != 3 {
		t.Fatalf("PendingCount: got %d, want 3", ch.PendingCount())
	}
	if handles[2].State() != bridge.StatePending {
		t.Fatal("third request should still be pending")
	}
	ch.ProcessPending()
	ch.ProcessPending()

	for i, h := range handles {
		if v, _ := h.Wait(); !v.Equal(bridge.Int(int64(i))) {
			t.Errorf("handle %d: got %s", i, v)
		}
	}
}

func TestChannelThreadGuard(t *testing.T) {
	var onThread atomic.Bool
	ch := bridge.NewChannel(newFakeDispatcher(), bridge.WithThreadGuard(onThread.Load))

	h := ch.QueueCall("identity", nil)
	if _, err := ch.Drain(); !errors.Is(err, bridge.ErrNotInterpreterThread) {
		t.Fatalf("expected ErrNotInterpreterThread, got %v", err)
	}
	if n := ch.ProcessPending(); n != 0 {
		t.Fatalf("ProcessPending off thread: got %d, want 0", n)
	}
	if h.State() != bridge.StatePending {
		t.Fatal("refused drain must leave requests queued")
	}

	onThread.Store(true)
	if n, err := ch.Drain(); err != nil || n != 1 {
		t.Fatalf("Drain on thread: got %d, %v", n, err)
	}
}

func TestChannelConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 250

	d := newFakeDispatcher()
	var mu sync.Mutex
	seen := make(map[int64]int)
	d.define("mark", func(args []bridge.Value, _ []bridge.NamedArg) (bridge.Value, error) {
		m, _ := args[0].AsInt()
		mu.Lock()
		seen[m]++
		mu.Unlock()
		return args[0], nil
	})
	ch := bridge.NewChannel(d)

	handles := make([][]*bridge.Handle, producers)
	var g errgroup.Group
	for p := 0; p < producers; p++ {
		p := p
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				marker := int64(p*perProducer + i)
				handles[p] = append(handles[p], ch.QueueCall("mark", []bridge.Value{bridge.Int(marker)}))
			}
			return nil
		})
	}

	// Drain concurrently with the producers, as the interpreter thread would.
	stop := make(chan struct{})
	drained := make(chan int)
	go func() {
		total := 0
		for {
			select {
			case <-stop:
				total += ch.ProcessPending()
				drained <- total
				return
			default:
				total += ch.ProcessPending()
			}
		}
	}()

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(stop)
	if total := <-drained; total != producers*perProducer {
		t.Fatalf("drained %d requests, want %d", total, producers*perProducer)
	}

	for p, hs := range handles {
		last := int64(-1)
		for _, h := range hs {
			v, err := h.Wait()
			if err != nil {
				t.Fatalf("producer %d: %v", p, err)
			}
			marker, _ := v.AsInt()
			if marker <= last {
				t.Fatalf("producer %d: results out of order (%d after %d)", p, marker, last)
			}
			last = marker
		}
	}

	if len(seen) != producers*perProducer {
		t.Fatalf("saw %d distinct markers, want %d", len(seen), producers*perProducer)
	}
	for m, n := range seen {
		if n != 1 {
			t.Errorf("marker %d dispatched %d times", m, n)
		}
	}
}

func TestGlobalChannel(t *testing.T) {
	bridge.SetGlobal(nil)
	h := bridge.QueueCall("identity", nil)
	if _, err := h.Wait(); !errors.Is(err, bridge.ErrNoGlobalChannel) {
		t.Fatalf("expected ErrNoGlobalChannel, got %v", err)
	}
	if bridge.ProcessPending() != 0 {
		t.Fatal("ProcessPending without a global channel should be 0")
	}

	ch := bridge.NewChannel(newFakeDispatcher())
	bridge.SetGlobal(ch)
	defer bridge.SetGlobal(nil)

	h = bridge.QueueCall("identity", []bridge.Value{bridge.Bool(true)})
	if bridge.ProcessPending() != 1 {
		t.Fatal("expected one request drained from the global channel")
	}
	if v, err := h.Wait(); err != nil || !v.Equal(bridge.Bool(true)) {
		t.Fatalf("got %s, %v", v, err)
	}
	if bridge.Global() != ch {
		t.Error("Global should return the installed channel")
	}
}
