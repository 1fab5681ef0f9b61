package asyncmaria

// runPipeline is the Pipeline Engine's single re-entry point (§4.5). It
// is only ever active while state == Idle; beginOp transitions state
// away from Idle the moment an operation goes asynchronous, which
// naturally breaks the loop below. inPipeline guards against the
// recursive re-entry the reentrancy contract forbids: a user callback
// that enqueues more work relies on the delivering call's own re-entry
// loop to pick it up, not a nested runPipeline call.
func (c *Client) runPipeline() {
	if c.inPipeline || c.callbackDepth != 0 {
		return
	}
	c.inPipeline = true
	defer func() { c.inPipeline = false }()

	for c.state == Idle {
		if c.trySendPhase() {
			continue
		}
		if c.tryReceivePhase() {
			continue
		}
		break
	}
}

// trySendPhase implements §4.5's send phase for one step: dispatch the
// head of the send queue if the pipeline window (for a query) or
// exclusivity (for everything else) allows it. Returns true if it made
// progress and the caller should loop again.
func (c *Client) trySendPhase() bool {
	n := c.sendQ.front()
	if n == nil {
		return false
	}
	if n.kind.exclusive() {
		if c.sendCount > 0 {
			return false
		}
		c.sendQ.pop()
		c.dispatchExclusive(n)
		return true
	}
	if c.sendCount >= maxPipelineDepth {
		return false
	}
	c.sendQ.pop()
	c.startSend(n)
	return true
}

// dispatchExclusive starts the connector operation for a non-query
// opNode. Exactly one such operation is ever in flight (send_count must
// be zero to reach here), matching §3's exclusivity invariant.
func (c *Client) dispatchExclusive(n *opNode) {
	switch n.kind {
	case opPing:
		c.startPing(n)
	case opSelectDB:
		c.startSelectDB(n)
	case opChangeUser:
		c.startChangeUser(n)
	case opResetConnection:
		c.startResetConnection(n)
	case opPrepare:
		c.startStmtPrepare(n)
	case opExecute:
		c.startStmtExecute(n)
	case opStmtClose:
		c.startStmtClose(n)
	case opStmtReset:
		c.startStmtReset(n)
	}
}

// tryReceivePhase implements §4.5's receive phase: while there is a sent
// query awaiting its result, read it. Returns true if it made progress.
func (c *Client) tryReceivePhase() bool {
	if c.sendCount <= 0 {
		return false
	}
	c.startReadResult()
	return true
}
