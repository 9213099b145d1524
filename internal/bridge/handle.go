package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle position of a Handle.
type State int32

const (
	StatePending State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Handle is the result slot of one queued Request. It moves from pending to
// completed or failed exactly once; every reader sees the same outcome.
type Handle struct {
	id    uint64
	done  chan struct{}
	once  sync.Once
	state atomic.Int32

	value Value
	err   error
}

func newHandle(id uint64) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID returns the id of the paired Request.
func (h *Handle) ID() uint64 { return h.id }

// State returns the current state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Done is closed once the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the request has been drained and returns its outcome.
func (h *Handle) Wait() (Value, error) {
	<-h.done
	return h.value, h.err
}

// WaitTimeout is Wait with a deadline. On timeout it returns ErrWaitTimeout
// and the handle stays pending.
func (h *Handle) WaitTimeout(d time.Duration) (Value, error) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-h.done:
		return h.value, h.err
	case <-t.C:
		return Value{}, ErrWaitTimeout
	}
}

// WaitContext is Wait bounded by ctx. On cancellation it returns ctx.Err()
// and the handle stays pending.
func (h *Handle) WaitContext(ctx context.Context) (Value, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return Value{}, ctx.Err()
	}
}

// TryPoll returns the outcome without blocking. ok is false while the
// request is still pending.
func (h *Handle) TryPoll() (v Value, err error, ok bool) {
	select {
	case <-h.done:
		return h.value, h.err, true
	default:
		return Value{}, nil, false
	}
}

// complete stores the outcome. Only the first call has any effect.
func (h *Handle) complete(v Value, err error) bool {
	first := false
	h.once.Do(func() {
		first = true
		if err != nil {
			h.err = &CallError{RequestID: h.id, Err: err}
			h.state.Store(int32(StateFailed))
		} else {
			h.value = v
			h.state.Store(int32(StateCompleted))
		}
		close(h.done)
	})
	return first
}
