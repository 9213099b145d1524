// Package bridge lets any goroutine call into a single-threaded PHP
// interpreter without touching interpreter state directly.
//
// Callers enqueue requests on a Channel and get a Handle back right away.
// The interpreter thread periodically calls ProcessPending, which runs the
// queued requests through a Dispatcher and completes each Handle:
//
//	ch := bridge.NewChannel(dispatcher)
//
//	// any goroutine
//	h := ch.QueueCall("strtoupper", []bridge.Value{bridge.String("hello")})
//
//	// interpreter thread
//	ch.ProcessPending()
//
//	// back on the caller
//	v, err := h.Wait()
//
// Values crossing the boundary are Values: owned, immutable copies that do
// not reference interpreter memory. PHP closures never leave the
// interpreter thread; they are registered in the Channel's Registry and
// referred to by ClosureID.
//
// A goroutine that waits on a Handle it enqueued itself must not be the only
// one draining the channel, or it will block forever.
package bridge
