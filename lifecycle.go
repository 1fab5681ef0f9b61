package asyncmaria

// This file implements §4.6, the Lifecycle Manager: the only component
// allowed to create or destroy a Conn and to unconditionally resolve
// every pending operation with a single error.

// Connect binds a detached Client to a server. cb fires once the
// connection succeeds or fails; it is not a per-operation callback and
// is never queued behind pending operations, since none can exist yet on
// a detached client.
func (c *Client) Connect(host, user, password, database string, port uint16, unixSocket string, cb func(error)) error {
	if c.connected {
		return &UsageError{Op: "connect", Message: "already connected"}
	}
	if c.state != Idle {
		return &UsageError{Op: "connect", Message: "connect already in progress"}
	}
	c.params = ConnectConfig{
		Host:       host,
		User:       user,
		Password:   password,
		Database:   database,
		Port:       port,
		UnixSocket: unixSocket,
	}
	c.onConnect = func() { cb(nil) }
	c.onError = func(err error) { cb(err) }
	c.conn = c.newConn()
	c.startConnecting()
	return nil
}

// buildConnectConfig merges the stored connection parameters with the
// options resolved at New time, producing the config passed to
// ConnectStart. Called fresh on every connect attempt (initial Connect
// and every Reset) so option changes made between connects take effect.
func (c *Client) buildConnectConfig() ConnectConfig {
	cfg := c.params
	cfg.ConnectTimeoutMS = int(c.opts.connectTimeout.Milliseconds())
	cfg.ReadTimeoutMS = int(c.opts.readTimeout.Milliseconds())
	cfg.WriteTimeoutMS = int(c.opts.writeTimeout.Milliseconds())
	cfg.Compress = c.opts.compress
	cfg.MultiStatements = c.opts.multiStatements
	cfg.Charset = c.opts.charset
	cfg.InitCommand = c.opts.initCommand
	cfg.SSLKey = c.opts.sslKey
	cfg.SSLCert = c.opts.sslCert
	cfg.SSLCA = c.opts.sslCA
	cfg.SSLCipher = c.opts.sslCipher
	cfg.SSLVerifyPeer = c.opts.sslVerifyPeer
	return cfg
}

// refreshConnScalars copies the connector's server-reported scalars onto
// the Client so the synchronous accessors in accessors.go need not touch
// conn directly (and have something sane to return once conn goes nil on
// teardown).
func (c *Client) refreshConnScalars() {
	c.lastError = c.conn.ErrorMessage()
	c.lastErrorNo = c.conn.ErrorNumber()
	c.lastSQLState = c.conn.SQLState()
	c.lastInsertID = c.conn.InsertID()
	c.lastWarnings = c.conn.WarningCount()
	c.lastInfo = c.conn.Info()
	c.serverVersion = c.conn.ServerVersion()
	c.serverInfo = c.conn.ServerInfo()
	c.threadID = c.conn.ThreadID()
	c.hostInfo = c.conn.HostInfo()
	c.characterSet = c.conn.CharacterSetName()
}

// failConnection handles a failure during Connect itself: there is no
// connection to tear down beyond the half-built conn, and no pending
// operations can exist yet (a detached client accepts none), so this is
// just reporting the failure and resetting to detached.
func (c *Client) failConnection(err error) {
	c.toIdle()
	c.connected = false
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	onError := c.onError
	c.onConnect, c.onError = nil, nil
	if onError != nil {
		c.invokePlain(func() { onError(err) })
	}
}

// failAllPending resolves every pending send and callback with err and
// tears the connection down: the Lifecycle Manager's one path for
// "something made the connection unusable; nothing enqueued before now
// will ever complete normally." Used for fatal connection errors outside
// Connect, and shared by Finish/SkipPending with a CancellationError.
func (c *Client) failAllPending(err error) {
	if n := c.current; n != nil {
		c.current = nil
		c.invoke(func() { n.cb.deliverQuery(nil, err) })
		putOpNode(n)
	}
	c.sendQ.drain(func(n *opNode) {
		c.invoke(func() { n.cb.deliverQuery(nil, err) })
	})
	c.cbQ.drain(func(n *opNode) {
		c.invoke(func() { n.cb.deliverQuery(nil, err) })
	})
	c.sendCount = 0
	c.draining = false
	c.toIdle()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.watcher.unbind()
	c.connected = false
	c.observeMetrics()
}

// Reset tears the connection down, discards every pending operation with
// a CancellationError, and reconnects using the previously stored
// parameters and options. It is the recovery path after a fatal
// connection error: the Client ends up either connected again or having
// reported a fresh connect failure through cb.
func (c *Client) Reset(cb func(error)) error {
	if err := c.requireConnected("reset"); err != nil {
		return err
	}
	c.failAllPending(&CancellationError{Reason: "connection reset"})
	c.conn = c.newConn()
	c.onConnect = func() { cb(nil) }
	c.onError = func(err error) { cb(err) }
	c.startConnecting()
	return nil
}

// Finish tears the connection down, failing every pending operation with
// a CancellationError, and returns the Client to detached. Unlike Reset
// it does not reconnect; the Client may be Connect'd again afterward.
func (c *Client) Finish() error {
	if !c.connected && c.PendingCount() == 0 {
		return nil
	}
	c.onConnect = nil
	c.onError = nil
	c.failAllPending(&CancellationError{Reason: "connection finished"})
	return nil
}

// Destroy tears the client down for good, resolving every pending
// operation with a CancellationError first (Testable Property #6:
// dropping the client mid-query must still invoke that query's
// callback, with an error). Calling it is idempotent.
//
// If Destroy is called reentrantly — from within one of the client's
// own callbacks — the actual teardown is deferred: the client is tagged
// freed, and invoke releases it once callbackDepth returns to zero.
// This is what the deferred-free tag exists for: the callback's own
// stack frame must not see conn or the watcher torn down out from under
// it mid-call.
func (c *Client) Destroy() {
	if c.freed {
		return
	}
	c.freed = true
	if c.callbackDepth == 0 {
		c.release()
	}
}

// SkipPending cancels every currently queued and in-flight operation with
// a CancellationError, leaving the connection itself intact and able to
// accept new work immediately. Safe to call from within a callback: the
// cancellation only touches queue state, never the connector, so it does
// not race the invoker's own bookkeeping.
func (c *Client) SkipPending() {
	err := &CancellationError{Reason: "skipped"}
	c.sendQ.drain(func(n *opNode) {
		c.invoke(func() { n.cb.deliverQuery(nil, err) })
	})
	c.cbQ.drain(func(n *opNode) {
		c.invoke(func() { n.cb.deliverQuery(nil, err) })
	})
	c.sendCount = 0
	c.observeMetrics()
}
