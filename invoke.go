package asyncmaria

// This file implements the reentrant-safe invoker from §4.3: every path
// that calls into user code funnels through here so callbackDepth
// bookkeeping, panic containment, and deferred-free reclamation are
// applied uniformly.

// invoke runs fn with the reentrancy bookkeeping the spec requires: a
// callback may enqueue further operations, call SkipPending, trigger
// Reset, or drop the last reference to the Client (deferred free) — all
// of which must see a consistent callbackDepth and must not tear down
// client storage while this stack frame still holds it.
func (c *Client) invoke(fn func()) {
	c.callbackDepth++
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.WithField("panic", r).Error("asyncmaria: callback panicked")
			}
		}()
		fn()
	}()
	c.callbackDepth--
	if c.callbackDepth == 0 && c.freed && !c.releasing {
		c.release()
	}
}

func (c *Client) invokeQuery(cb opCallback, res *QueryResult, err error) {
	c.invoke(func() { cb.deliverQuery(res, err) })
}

func (c *Client) invokePlain(fn func()) {
	c.invoke(fn)
}

// release is the deferred-free reclamation routine: it runs once
// callbackDepth returns to zero after the client was tagged freed while
// a callback frame was still on the stack. It resolves every pending
// operation with a CancellationError before tearing the connector and
// watcher down — Testable Property #6 requires that dropping the client
// mid-query still invoke that query's callback, with an error. There is
// nothing to release explicitly in the Go port beyond that and
// detaching from the connector and event loop; the garbage collector
// reclaims the struct itself once the caller's last reference is gone.
func (c *Client) release() {
	c.releasing = true
	c.onConnect = nil
	c.onError = nil
	c.failAllPending(&CancellationError{Reason: "destroyed"})
	c.releasing = false
}
