package bridge

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Dispatcher runs requests against the interpreter. Both methods are only
// ever called on the interpreter thread, from inside ProcessPending or
// Registry.Register.
type Dispatcher interface {
	// IsCallable reports whether ref may be stored in the Registry.
	IsCallable(ref any) bool
	// Dispatch executes req. callable is the registered closure for
	// ByClosure targets and nil for ByName targets.
	Dispatch(req *Request, callable any) (Value, error)
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger used for drain diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithThreadGuard installs a check that reports whether the calling
// goroutine is the interpreter thread. Drain refuses to run when it fails.
func WithThreadGuard(onThread func() bool) Option {
	return func(c *Channel) { c.onThread = onThread }
}

// WithDrainLimit caps how many requests a single drain processes. Zero
// means the whole queue as it stood when the drain started.
func WithDrainLimit(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.drainLimit = n
		}
	}
}

type queued struct {
	req    *Request
	handle *Handle
}

// Channel queues calls from any goroutine and runs them on the interpreter
// thread when ProcessPending is called there.
type Channel struct {
	dispatcher Dispatcher
	registry   *Registry
	logger     *slog.Logger
	onThread   func() bool
	drainLimit int

	mu     sync.Mutex
	queue  []queued
	closed bool
	nextID atomic.Uint64

	// Metrics
	totalQueued    atomic.Int64
	totalDrained   atomic.Int64
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
	totalDropped   atomic.Int64
}

// NewChannel creates a channel that executes requests through d.
func NewChannel(d Dispatcher, opts ...Option) *Channel {
	c := &Channel{
		dispatcher: d,
		registry:   NewRegistry(d.IsCallable),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the closure registry used to resolve ByClosure targets.
func (c *Channel) Registry() *Registry { return c.registry }

// QueueCall enqueues a call to the named function.
func (c *Channel) QueueCall(function string, args []Value) *Handle {
	return c.enqueue(ByName(function), args, nil)
}

// QueueCallNamed enqueues a call to the named function with positional
// and named arguments.
func (c *Channel) QueueCallNamed(function string, args []Value, named []NamedArg) *Handle {
	return c.enqueue(ByName(function), args, named)
}

// QueueClosureCall enqueues a call to a registered closure. The id is
// resolved when the request is drained, not now.
func (c *Channel) QueueClosureCall(id ClosureID, args []Value) *Handle {
	return c.enqueue(ByClosure(id), args, nil)
}

// QueueClosureCallNamed enqueues a closure call with positional and named
// arguments.
func (c *Channel) QueueClosureCallNamed(id ClosureID, args []Value, named []NamedArg) *Handle {
	return c.enqueue(ByClosure(id), args, named)
}

func (c *Channel) enqueue(target Target, args []Value, named []NamedArg) *Handle {
	req := &Request{
		ID:     c.nextID.Add(1),
		Target: target,
		Args:   append([]Value(nil), args...),
	}
	if len(named) > 0 {
		req.Named = append([]NamedArg(nil), named...)
	}
	h := newHandle(req.ID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		h.complete(Value{}, ErrChannelClosed)
		c.totalFailed.Add(1)
		return h
	}
	c.queue = append(c.queue, queued{req: req, handle: h})
	c.mu.Unlock()

	c.totalQueued.Add(1)
	return h
}

// Close stops the channel from accepting requests. Calls queued afterwards
// fail at once with ErrChannelClosed; requests already queued are still
// run by the next drain.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ProcessPending drains the requests that were queued when it was called
// and returns how many it processed. It must run on the interpreter thread;
// elsewhere it logs an error and returns 0.
func (c *Channel) ProcessPending() int {
	n, err := c.Drain()
	if err != nil {
		c.logger.Error("process pending refused", "error", err)
	}
	return n
}

// Drain is ProcessPending that reports a thread-affinity violation as
// ErrNotInterpreterThread instead of logging it.
//
// Requests enqueued while a drain is running are left for the next drain,
// so a steady stream of producers cannot keep it looping. A dispatch may
// call Drain again; the nested drain sees only requests queued after the
// outer batch was taken.
func (c *Channel) Drain() (int, error) {
	if c.onThread != nil && !c.onThread() {
		return 0, ErrNotInterpreterThread
	}

	batch := c.take()
	for _, q := range batch {
		c.dispatch(q)
	}
	if len(batch) > 0 {
		c.totalDrained.Add(int64(len(batch)))
		c.logger.Debug("drained call queue", "drained", len(batch), "pending", c.PendingCount())
	}
	return len(batch), nil
}

// take detaches the batch to process next.
func (c *Channel) take() []queued {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.queue
	if c.drainLimit > 0 && len(batch) > c.drainLimit {
		rest := make([]queued, len(batch)-c.drainLimit)
		copy(rest, batch[c.drainLimit:])
		c.queue = rest
		return batch[:c.drainLimit]
	}
	c.queue = nil
	return batch
}

func (c *Channel) dispatch(q queued) {
	v, err := c.invoke(q.req)
	q.handle.complete(v, err)

	if err != nil {
		c.totalFailed.Add(1)
		c.logger.Debug("call failed",
			"request_id", q.req.ID,
			"target", q.req.Target.String(),
			"error", err,
		)
		return
	}
	c.totalCompleted.Add(1)
}

func (c *Channel) invoke(req *Request) (v Value, err error) {
	var callable any
	if req.Target.IsClosure() {
		ref, ok := c.registry.Lookup(req.Target.Closure)
		if !ok {
			return Value{}, &UnknownTargetError{Target: req.Target}
		}
		callable = ref
	}

	defer func() {
		if r := recover(); r != nil {
			v = Value{}
			err = &InvocationError{Target: req.Target, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return c.dispatcher.Dispatch(req, callable)
}

// HasPending reports whether any request is queued. The answer may be stale
// by the time it is read.
func (c *Channel) HasPending() bool {
	return c.PendingCount() > 0
}

// PendingCount returns the number of queued requests.
func (c *Channel) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// NoteDroppedArgs records arguments a caller filtered out because they had
// no serialized form.
func (c *Channel) NoteDroppedArgs(function string, n int) {
	if n <= 0 {
		return
	}
	c.totalDropped.Add(int64(n))
	c.logger.Warn("dropped unconvertible arguments", "function", function, "count", n)
}

// Stats returns channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Queued:      c.totalQueued.Load(),
		Drained:     c.totalDrained.Load(),
		Completed:   c.totalCompleted.Load(),
		Failed:      c.totalFailed.Load(),
		DroppedArgs: c.totalDropped.Load(),
		Pending:     c.PendingCount(),
		Registered:  c.registry.Len(),
	}
}

// Stats holds channel metrics.
type Stats struct {
	Queued      int64 `json:"queued"`
	Drained     int64 `json:"drained"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	DroppedArgs int64 `json:"dropped_args"`
	Pending     int   `json:"pending"`
	Registered  int   `json:"registered"`
}
