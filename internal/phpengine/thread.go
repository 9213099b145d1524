package phpengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jtolds/gls"

	"github.com/sadewadee/phpbridge/internal/bridge"
)

// ErrThreadStopped is returned by Do once the thread has exited.
var ErrThreadStopped = errors.New("interpreter thread stopped")

// DefaultPumpInterval is used when NewThread gets a non-positive interval.
const DefaultPumpInterval = 5 * time.Millisecond

var threadMarks = gls.NewContextManager()

type threadMark struct{}

// OnThread reports whether the calling goroutine is running inside any
// interpreter thread. It is the channel's thread guard.
func OnThread() bool {
	_, ok := threadMarks.GetValue(threadMark{})
	return ok
}

type task struct {
	fn   func(*Engine) error
	done chan error
}

// Thread owns an Engine on a single OS thread. Work reaches the engine
// only through Do or through the call channel, which the thread drains on
// every pump tick and after every task.
type Thread struct {
	engine   *Engine
	channel  *bridge.Channel
	interval time.Duration
	logger   *slog.Logger

	tasks   chan task
	quit    chan struct{}
	stopped chan struct{}

	started  atomic.Bool
	running  atomic.Bool
	pumped   atomic.Int64
	stopOnce sync.Once
}

// NewThread creates a thread for engine that pumps ch every interval.
func NewThread(engine *Engine, ch *bridge.Channel, interval time.Duration, logger *slog.Logger) *Thread {
	if interval <= 0 {
		interval = DefaultPumpInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Thread{
		engine:   engine,
		channel:  ch,
		interval: interval,
		logger:   logger,
		tasks:    make(chan task),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the thread and starts the engine on it. It returns once
// the engine is up, or with the startup error.
func (t *Thread) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return errors.New("interpreter thread already started")
	}
	ready := make(chan error, 1)
	go t.run(ctx, ready)
	return <-ready
}

func (t *Thread) run(ctx context.Context, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.stopped)

	threadMarks.SetValues(gls.Values{threadMark{}: t}, func() {
		t.engine.setThreadGuard(t.OnThread)
		if err := t.engine.Startup(); err != nil {
			ready <- err
			return
		}
		t.running.Store(true)
		ready <- nil
		t.logger.Info("interpreter thread started", "pump_interval", t.interval)

		t.loop(ctx)

		t.running.Store(false)
		// Queued requests still get a result; later ones fail with
		// bridge.ErrChannelClosed instead of waiting forever.
		if t.channel != nil {
			t.channel.Close()
			for t.channel.HasPending() {
				if t.channel.ProcessPending() == 0 {
					break
				}
			}
		}
		if err := t.engine.Shutdown(); err != nil {
			t.logger.Error("engine shutdown failed", "error", err)
		}
		t.logger.Info("interpreter thread stopped", "pumped", t.pumped.Load())
	})
}

func (t *Thread) loop(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.quit:
			return
		case tk := <-t.tasks:
			tk.done <- t.runTask(tk.fn)
			t.pump()
		case <-ticker.C:
			t.pump()
		}
	}
}

func (t *Thread) runTask(fn func(*Engine) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			t.logger.Error("interpreter task panicked", "panic", r)
		}
	}()
	return fn(t.engine)
}

func (t *Thread) pump() {
	t.pumped.Add(1)
	if t.channel == nil || !t.channel.HasPending() {
		return
	}
	t.channel.ProcessPending()
}

// OnThread reports whether the caller is running on this thread.
func (t *Thread) OnThread() bool {
	v, ok := threadMarks.GetValue(threadMark{})
	return ok && v == t
}

// Do runs fn on the thread and waits for it. Called from the thread
// itself, fn runs inline.
func (t *Thread) Do(ctx context.Context, fn func(*Engine) error) error {
	if t.OnThread() {
		return t.runTask(fn)
	}
	if !t.running.Load() {
		return ErrThreadStopped
	}

	tk := task{fn: fn, done: make(chan error, 1)}
	select {
	case t.tasks <- tk:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopped:
		return ErrThreadStopped
	}

	select {
	case err := <-tk.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the loop, completes every queued request and shuts the engine
// down. It waits for the thread to exit.
func (t *Thread) Stop() {
	if !t.started.Load() {
		return
	}
	t.stopOnce.Do(func() { close(t.quit) })
	<-t.stopped
}

// Done is closed when the thread has exited.
func (t *Thread) Done() <-chan struct{} { return t.stopped }

// Running reports whether the engine is up and the loop is pumping.
func (t *Thread) Running() bool { return t.running.Load() }

// Pumped returns how many pump passes the thread has made.
func (t *Thread) Pumped() int64 { return t.pumped.Load() }

// Engine returns the engine owned by the thread.
func (t *Thread) Engine() *Engine { return t.engine }
