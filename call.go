package mysql

import "sync/atomic"

// Call is a generic, single-resolution completion handle (spec §4.F,
// §5): exactly one of Result or error ever reaches the caller, even
// when a cancellation races a late server response. resolved is a
// CompareAndSwap guard so whichever of "deliver the real result" or
// "deliver ErrCancelled" gets there first wins; the loser's value is
// silently dropped instead of being sent twice or blocking forever.
type Call[T any] struct {
	done      chan struct{}
	result    T
	err       error
	resolved  atomic.Bool
	cancelled atomic.Bool
}

func newCall[T any]() *Call[T] {
	return &Call[T]{done: make(chan struct{})}
}

// resolve delivers the successful result. Returns false if the call
// was already resolved (by a prior resolve or cancel).
func (c *Call[T]) resolve(v T) bool {
	if !c.resolved.CompareAndSwap(false, true) {
		return false
	}
	c.result = v
	close(c.done)
	return true
}

// reject delivers a failure. Returns false if the call was already
// resolved.
func (c *Call[T]) reject(err error) bool {
	if !c.resolved.CompareAndSwap(false, true) {
		return false
	}
	c.err = err
	close(c.done)
	return true
}

// cancel marks the call cancelled and rejects it with ErrCancelled, if
// it hasn't already resolved. Safe to call concurrently with
// resolve/reject; at most one wins.
func (c *Call[T]) cancel() {
	c.cancelled.Store(true)
	c.reject(ErrCancelled)
}

// wasCancelled reports whether cancel was invoked on this call,
// regardless of which side won the resolution race.
func (c *Call[T]) wasCancelled() bool { return c.cancelled.Load() }

// Wait blocks until the call resolves, returning its result or error.
func (c *Call[T]) Wait() (T, error) {
	<-c.done
	return c.result, c.err
}

// Done returns a channel closed when the call resolves, for use in a
// select alongside a context's Done channel.
func (c *Call[T]) Done() <-chan struct{} { return c.done }
