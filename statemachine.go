package asyncmaria

// This file implements §4.4: for every non-idle OpState there is a start
// step and a continue step that share a single done handler. contFn and
// doneFn on Client hold the bound closures for whichever operation is
// currently in flight; the Watcher Adapter's fired callbacks funnel into
// advance, which is the only place continue steps are invoked from.

// armWatcher registers interest for w with the watcher adapter, using the
// connector's currently reported timeout.
func (c *Client) armWatcher(w WaitSet) {
	_ = c.watcher.update(w, c.conn.TimeoutMillis(), c.onTimerFire)
}

// onIOEvent is the Watcher Adapter's fd callback, wired once per
// connection in lifecycle.go's bind step.
func (c *Client) onIOEvent(read, write bool) {
	var ws WaitSet
	if read {
		ws |= WaitRead
	}
	if write {
		ws |= WaitWrite
	}
	c.advance(ws)
}

func (c *Client) onTimerFire() {
	c.advance(WaitTimeout)
}

// advance drives the current state's continue step with the fired
// event/timeout bits and dispatches to done once the connector reports
// completion.
func (c *Client) advance(events WaitSet) {
	if c.contFn == nil {
		return
	}
	cont, done := c.contFn, c.doneFn
	w, err := cont(events)
	if err != nil {
		done(err)
		return
	}
	if w.Done() {
		c.contFn, c.doneFn = nil, nil
		done(nil)
		return
	}
	c.armWatcher(w)
}

// beginOp runs an operation's start step: on synchronous completion
// (wait-set empty) it invokes done immediately without ever registering
// a watcher, per the Design Notes' synchronous fast-path contract. On
// asynchronous start it transitions to state, arms the watcher, and
// stashes cont/done for advance to use.
func (c *Client) beginOp(state OpState, start func() (WaitSet, error), cont func(WaitSet) (WaitSet, error), done func(error)) {
	c.state = state
	w, err := start()
	if err != nil {
		done(err)
		return
	}
	if w.Done() {
		done(nil)
		return
	}
	c.contFn, c.doneFn = cont, done
	c.armWatcher(w)
}

// toIdle clears the watcher's registrations (the critical invariant from
// §4.1) and returns the state machine to Idle.
func (c *Client) toIdle() {
	c.watcher.clear()
	c.state = Idle
	c.contFn, c.doneFn = nil, nil
}

// ---- Connecting ----

func (c *Client) startConnecting() {
	cfg := c.buildConnectConfig()
	c.beginOp(Connecting, func() (WaitSet, error) {
		return c.conn.ConnectStart(cfg)
	}, func(ws WaitSet) (WaitSet, error) {
		return c.conn.ConnectCont(ws)
	}, c.doneConnecting)
}

func (c *Client) doneConnecting(hardErr error) {
	if hardErr != nil {
		c.failConnection(hardErr)
		return
	}
	// ConnectResult isn't a separate accessor; a failed connect is
	// reported through ErrorMessage/ErrorNumber being non-zero. We treat
	// any non-empty error message after wait==0 as connect failure.
	if msg := c.conn.ErrorMessage(); msg != "" {
		c.failConnection(&ConnectionError{Cause: errString(msg)})
		return
	}
	c.connected = true
	c.refreshConnScalars()
	if err := c.watcher.bind(c.conn.FD(), c.onIOEvent); err != nil {
		c.failConnection(err)
		return
	}
	c.toIdle()
	onConnect := c.onConnect
	c.onConnect, c.onError = nil, nil
	if onConnect != nil {
		c.invokePlain(onConnect)
	}
	c.runPipeline()
}

// ---- Send (submit one query's text to the wire) ----

func (c *Client) startSend(n *opNode) {
	c.current = n
	c.beginOp(Send, func() (WaitSet, error) {
		return c.conn.SendStart(n.sql)
	}, c.conn.SendCont, c.doneSend)
}

func (c *Client) doneSend(hardErr error) {
	n := c.current
	c.current = nil
	if hardErr != nil {
		c.toIdle()
		connErr := &ConnectionError{Cause: hardErr}
		c.countOp(n.kind, connErr)
		c.invokeQuery(n.cb, nil, connErr)
		putOpNode(n)
		c.failAllPending(connErr)
		return
	}
	if msg := c.conn.ErrorMessage(); msg != "" {
		// A send-phase failure is fatal to the connection per §4.5 step 3.
		c.toIdle()
		err := &ConnectionError{Cause: errString(msg)}
		c.countOp(n.kind, err)
		c.invokeQuery(n.cb, nil, err)
		putOpNode(n)
		c.failAllPending(err)
		return
	}
	c.cbQ.push(n)
	c.sendCount++
	c.toIdle()
	c.observeMetrics()
	c.runPipeline()
}

// ---- ReadResult / StoreResult (drain one already-sent query) ----

func (c *Client) startReadResult() {
	c.beginOp(ReadResult, c.conn.ReadResultStart, c.conn.ReadResultCont, c.doneReadResult)
}

func (c *Client) doneReadResult(hardErr error) {
	n := c.cbQ.front()
	if hardErr != nil {
		c.resolveReadFailure(n, &ConnectionError{Cause: hardErr}, true)
		return
	}
	fieldCount, affected, insertID, err := c.conn.QueryResult()
	if err != nil {
		c.resolveReadFailure(n, &OperationError{Cause: err}, false)
		return
	}
	if fieldCount > 0 {
		c.startStoreResult()
		return
	}
	c.deliverSentQuery(&QueryResult{Affected: affected, InsertID: insertID}, nil)
}

// resolveReadFailure handles a failed read: operation errors are local
// (pipeline continues after draining residual results); connection
// errors are fatal to every pending operation.
func (c *Client) resolveReadFailure(n *opNode, err error, fatal bool) {
	if fatal {
		c.toIdle()
		if n != nil {
			c.cbQ.pop()
			c.sendCount--
			c.countOp(n.kind, err)
			c.invokeQuery(n.cb, nil, err)
			putOpNode(n)
		}
		c.failAllPending(err)
		return
	}
	c.deliverSentQuery(nil, err)
}

func (c *Client) startStoreResult() {
	c.beginOp(StoreResult, c.conn.StoreResultStart, c.conn.StoreResultCont, c.doneStoreResult)
}

func (c *Client) doneStoreResult(hardErr error) {
	if hardErr != nil {
		c.resolveReadFailure(c.cbQ.front(), &ConnectionError{Cause: hardErr}, true)
		return
	}
	res, err := c.conn.StoreResultResult()
	if err != nil {
		c.resolveReadFailure(c.cbQ.front(), &OperationError{Cause: err}, false)
		return
	}
	rows, err := materializeText(res)
	if err != nil {
		c.deliverSentQuery(nil, &OperationError{Cause: err})
		return
	}
	c.deliverSentQuery(&QueryResult{Rows: rows}, nil)
}

// deliverSentQuery resolves the head of cbQ (which must correspond to a
// Query or Execute whose wire round-trip just finished), then checks for
// more results to drain and re-enters the pipeline.
func (c *Client) deliverSentQuery(res *QueryResult, err error) {
	n := c.cbQ.pop()
	c.sendCount--
	c.toIdle()
	c.refreshConnScalars()
	c.observeMetrics()
	if n != nil {
		c.countOp(n.kind, err)
		c.invokeQuery(n.cb, res, err)
		putOpNode(n)
	}
	if c.opts.multiStatements && c.conn.MoreResults() {
		c.startNextResultDrain()
		return
	}
	c.runPipeline()
}

// ---- NextResult (multi-result drain) ----

func (c *Client) startNextResultDrain() {
	c.draining = true
	c.beginOp(NextResult, c.conn.NextResultStart, c.conn.NextResultCont, c.doneNextResult)
}

func (c *Client) doneNextResult(hardErr error) {
	if hardErr != nil {
		// Drain errors are swallowed per §4.5: the statement's own error
		// was already delivered to its callback.
		c.draining = false
		c.toIdle()
		c.runPipeline()
		return
	}
	more, err := c.conn.NextResultResult()
	if err != nil || !more {
		c.draining = false
		c.toIdle()
		c.runPipeline()
		return
	}
	fieldCount, _, _, qerr := c.conn.QueryResult()
	if qerr != nil || fieldCount == 0 {
		c.startNextResultDrain()
		return
	}
	c.beginOp(StoreResult, c.conn.StoreResultStart, c.conn.StoreResultCont, func(hardErr error) {
		if hardErr == nil {
			if res, err := c.conn.StoreResultResult(); err == nil {
				res.Close()
			}
		}
		c.startNextResultDrain()
	})
}

// ---- Ping / SelectDB / ChangeUser / ResetConnection (utility ops) ----

func (c *Client) startPing(n *opNode) {
	c.current = n
	c.beginOp(Ping, c.conn.PingStart, c.conn.PingCont, func(hardErr error) {
		c.finishUtility(n, hardErr, c.conn.PingResult)
	})
}

func (c *Client) startSelectDB(n *opNode) {
	c.current = n
	c.beginOp(SelectDB, func() (WaitSet, error) {
		return c.conn.SelectDBStart(n.db)
	}, c.conn.SelectDBCont, func(hardErr error) {
		c.finishUtility(n, hardErr, c.conn.SelectDBResult)
	})
}

func (c *Client) startChangeUser(n *opNode) {
	c.current = n
	c.beginOp(ChangeUser, func() (WaitSet, error) {
		return c.conn.ChangeUserStart(n.user, n.pass, n.db)
	}, c.conn.ChangeUserCont, func(hardErr error) {
		c.finishUtility(n, hardErr, c.conn.ChangeUserResult)
	})
}

func (c *Client) startResetConnection(n *opNode) {
	c.current = n
	c.beginOp(ResetConnection, c.conn.ResetConnectionStart, c.conn.ResetConnectionCont, func(hardErr error) {
		c.finishUtility(n, hardErr, c.conn.ResetConnectionResult)
	})
}

func (c *Client) finishUtility(n *opNode, hardErr error, result func() error) {
	c.current = nil
	c.toIdle()
	c.refreshConnScalars()
	var err error
	if hardErr != nil {
		err = &ConnectionError{Cause: hardErr}
	} else if rerr := result(); rerr != nil {
		err = &OperationError{Cause: rerr}
	}
	c.countOp(n.kind, err)
	c.invokePlain(func() { n.cb.deliverPlain(err) })
	putOpNode(n)
	if _, ok := err.(*ConnectionError); ok {
		c.failAllPending(err)
		return
	}
	c.runPipeline()
}

// ---- StmtPrepare / StmtExecute / StmtStore / StmtClose / StmtReset ----

func (c *Client) startStmtPrepare(n *opNode) {
	c.current = n
	c.beginOp(StmtPrepare, func() (WaitSet, error) {
		return c.conn.PrepareStart(n.sql)
	}, c.conn.PrepareCont, c.doneStmtPrepare)
}

func (c *Client) doneStmtPrepare(hardErr error) {
	n := c.current
	c.current = nil
	c.toIdle()
	c.refreshConnScalars()
	if hardErr != nil {
		connErr := &ConnectionError{Cause: hardErr}
		c.countOp(n.kind, connErr)
		c.invokePlain(func() { n.cb.deliverPrepare(invalidStmtHandle, connErr) })
		putOpNode(n)
		c.failAllPending(connErr)
		return
	}
	stmt, err := c.conn.PrepareResult()
	if err != nil {
		opErr := &OperationError{Cause: err}
		c.countOp(n.kind, opErr)
		c.invokePlain(func() { n.cb.deliverPrepare(invalidStmtHandle, opErr) })
		putOpNode(n)
		c.runPipeline()
		return
	}
	h := c.stmts.register(stmt)
	c.countOp(n.kind, nil)
	c.invokePlain(func() { n.cb.deliverPrepare(h, nil) })
	putOpNode(n)
	c.runPipeline()
}

func (c *Client) startStmtExecute(n *opNode) {
	stmt, ok := c.stmts.lookup(n.stmt)
	if !ok {
		c.finishQueryNode(n, nil, &UsageError{Op: "execute", Message: "unknown or closed statement handle"})
		c.runPipeline()
		return
	}
	c.current = n
	c.beginOp(StmtExecute, func() (WaitSet, error) {
		return stmt.ExecuteStart(n.params)
	}, stmt.ExecuteCont, func(hardErr error) {
		c.doneStmtExecute(stmt, hardErr)
	})
}

func (c *Client) doneStmtExecute(stmt Stmt, hardErr error) {
	n := c.current
	if hardErr != nil {
		c.current = nil
		c.toIdle()
		c.finishQueryNode(n, nil, &ConnectionError{Cause: hardErr})
		c.failAllPending(&ConnectionError{Cause: hardErr})
		return
	}
	fieldCount, affected, insertID, err := stmt.ExecuteResult()
	if err != nil {
		c.current = nil
		c.toIdle()
		c.finishQueryNode(n, nil, &OperationError{Cause: err})
		c.runPipeline()
		return
	}
	if fieldCount == 0 {
		c.current = nil
		c.toIdle()
		c.finishQueryNode(n, &QueryResult{Affected: affected, InsertID: insertID}, nil)
		c.runPipeline()
		return
	}
	c.beginOp(StmtStore, stmt.StoreStart, stmt.StoreCont, func(hardErr error) {
		c.doneStmtStore(stmt, hardErr)
	})
}

func (c *Client) doneStmtStore(stmt Stmt, hardErr error) {
	n := c.current
	c.current = nil
	c.toIdle()
	if hardErr != nil {
		c.finishQueryNode(n, nil, &ConnectionError{Cause: hardErr})
		c.failAllPending(&ConnectionError{Cause: hardErr})
		return
	}
	res, err := stmt.StoreResult()
	if err != nil {
		c.finishQueryNode(n, nil, &OperationError{Cause: err})
		c.runPipeline()
		return
	}
	rows, err := materializeBinary(res)
	if err != nil {
		c.finishQueryNode(n, nil, &OperationError{Cause: err})
		c.runPipeline()
		return
	}
	c.finishQueryNode(n, &QueryResult{Rows: rows}, nil)
	c.runPipeline()
}

func (c *Client) finishQueryNode(n *opNode, res *QueryResult, err error) {
	c.countOp(n.kind, err)
	c.invokeQuery(n.cb, res, err)
	putOpNode(n)
}

func (c *Client) startStmtClose(n *opNode) {
	stmt, ok := c.stmts.lookup(n.stmt)
	if !ok {
		c.invokePlain(func() { n.cb.deliverPlain(nil) })
		putOpNode(n)
		c.runPipeline()
		return
	}
	c.current = n
	c.beginOp(StmtClose, stmt.CloseStart, stmt.CloseCont, func(hardErr error) {
		c.current = nil
		c.toIdle()
		c.stmts.release(n.stmt)
		var err error
		if hardErr != nil {
			err = &ConnectionError{Cause: hardErr}
		} else if rerr := stmt.CloseResult(); rerr != nil {
			err = &OperationError{Cause: rerr}
		}
		c.countOp(n.kind, err)
		c.invokePlain(func() { n.cb.deliverPlain(err) })
		putOpNode(n)
		if _, ok := err.(*ConnectionError); ok {
			c.failAllPending(err)
			return
		}
		c.runPipeline()
	})
}

func (c *Client) startStmtReset(n *opNode) {
	stmt, ok := c.stmts.lookup(n.stmt)
	if !ok {
		c.invokePlain(func() { n.cb.deliverPlain(&UsageError{Op: "stmt_reset", Message: "unknown or closed statement handle"}) })
		putOpNode(n)
		c.runPipeline()
		return
	}
	c.current = n
	c.beginOp(StmtReset, stmt.ResetStart, stmt.ResetCont, func(hardErr error) {
		c.current = nil
		c.toIdle()
		var err error
		if hardErr != nil {
			err = &ConnectionError{Cause: hardErr}
		} else if rerr := stmt.ResetResult(); rerr != nil {
			err = &OperationError{Cause: rerr}
		}
		c.countOp(n.kind, err)
		c.invokePlain(func() { n.cb.deliverPlain(err) })
		putOpNode(n)
		if _, ok := err.(*ConnectionError); ok {
			c.failAllPending(err)
			return
		}
		c.runPipeline()
	})
}
