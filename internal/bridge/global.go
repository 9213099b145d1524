package bridge

import (
	"errors"
	"sync/atomic"
)

// ErrNoGlobalChannel fails calls queued through the package helpers before
// SetGlobal was called.
var ErrNoGlobalChannel = errors.New("no global channel installed")

var global atomic.Pointer[Channel]

// SetGlobal installs ch as the process-wide channel used by the package
// level helpers. Passing nil removes it.
func SetGlobal(ch *Channel) {
	global.Store(ch)
}

// Global returns the process-wide channel, or nil.
func Global() *Channel {
	return global.Load()
}

// QueueCall queues a call on the global channel. Without a global channel
// the returned handle has already failed with ErrNoGlobalChannel.
func QueueCall(function string, args []Value) *Handle {
	ch := Global()
	if ch == nil {
		h := newHandle(0)
		h.complete(Value{}, ErrNoGlobalChannel)
		return h
	}
	return ch.QueueCall(function, args)
}

// ProcessPending drains the global channel. It returns 0 when none is set.
func ProcessPending() int {
	ch := Global()
	if ch == nil {
		return 0
	}
	return ch.ProcessPending()
}
