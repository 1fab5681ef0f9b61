package asyncmaria

import (
	"fmt"
	"sync/atomic"
)

// maxPipelineDepth is MAX_PIPELINE_DEPTH from §6: the hard cap on queries
// sent before any corresponding result is read.
const maxPipelineDepth = 64

var clientSeq atomic.Uint64

// Client is the top-level object: one connector handle, one watcher
// adapter, the send queue, the cb queue, and the stored connection
// parameters. It is created detached; Connect binds it to a server,
// Finish or destruction returns it to detached.
type Client struct {
	id string

	loop    EventLoop
	newConn func() Conn // factory so tests can inject a fake Conn
	conn    Conn
	watcher *watcherAdapter

	opts    *options
	params  ConnectConfig
	logger  Logger

	onConnect func()
	onError   func(error)

	state    OpState
	draining bool

	// contFn/doneFn hold the bound continue/done closures for whichever
	// operation beginOp most recently started; nil whenever no
	// asynchronous step is outstanding. advance reads these; toIdle and a
	// completed done call clear them.
	contFn func(WaitSet) (WaitSet, error)
	doneFn func(error)

	sendQ opQueue
	cbQ   opQueue
	// sendCount is the number of cbQ entries at the front that
	// correspond to already-sent queries, bounded by maxPipelineDepth.
	sendCount int

	// current is the opNode the state machine is actively driving when
	// state is Send or one of the exclusive-operation states; nil
	// whenever state is Idle, Connecting, ReadResult, StoreResult, or
	// NextResult (those read from cbQ.front() instead).
	current *opNode

	stmts stmtArena

	callbackDepth int
	freed         bool
	releasing     bool
	connected     bool
	inPipeline    bool

	// server-reported scalars refreshed by the accessors' owning
	// operations; see accessors.go.
	lastError      string
	lastErrorNo    int
	lastSQLState   string
	lastInsertID   uint64
	lastWarnings   uint32
	lastInfo       string
	serverVersion  string
	serverInfo     string
	threadID       uint64
	hostInfo       string
	characterSet   string
}

// New creates a detached Client bound to loop. newConn constructs a
// fresh, unconnected Conn each time Connect or Reset needs one — in
// production this is internal/mariadbconn's cgo binding; in tests, a
// fake.
func New(loop EventLoop, newConn func() Conn, opts ...Option) (*Client, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	c := &Client{
		id:      fmt.Sprintf("asyncmaria-%d", clientSeq.Add(1)),
		loop:    loop,
		newConn: newConn,
		opts:    o,
		logger:  o.logger,
		watcher: newWatcherAdapter(loop),
	}
	return c, nil
}

// IsConnected reports whether the client currently believes it has a
// live connection. It reflects the last completed connect/reset/finish,
// not a live socket probe.
func (c *Client) IsConnected() bool { return c.connected }

// PendingCount is |send_queue| + |cb_queue|, the invariant from §3.
func (c *Client) PendingCount() int {
	n := c.sendQ.len() + c.cbQ.len()
	if c.current != nil {
		n++
	}
	return n
}

func (c *Client) observeMetrics() {
	c.opts.metrics.observeGauges(c.id, c.PendingCount(), c.sendCount)
}

// countOp records one terminal operation outcome against the
// asyncmaria_operations_total counter.
func (c *Client) countOp(kind opKind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.opts.metrics.countOperation(kind.String(), outcome)
}

// requireConnected returns a UsageError if the client is not connected,
// for operations that make no sense against a detached client.
func (c *Client) requireConnected(op string) error {
	if !c.connected {
		return &UsageError{Op: op, Message: "not connected"}
	}
	return nil
}

// requireExclusive returns a UsageError if an exclusive operation cannot
// be accepted right now: the reentrancy contract in §5 forbids starting
// one while queries are in flight.
func (c *Client) requireExclusive(op string) error {
	if c.sendCount > 0 {
		return &UsageError{Op: op, Message: "pipeline busy: queries are in flight"}
	}
	return nil
}

// enqueue appends n to the send queue and kicks the Pipeline Engine if
// it is currently idle and not already running (reentrancy: a callback
// that enqueues more work must not recursively re-enter the engine; the
// outer invocation's own post-delivery re-entry loop picks it up).
func (c *Client) enqueue(n *opNode) {
	c.sendQ.push(n)
	c.observeMetrics()
	if c.state == Idle && c.callbackDepth == 0 {
		c.runPipeline()
	}
}

// Query submits sql for execution. Rows are delivered for SELECT-shaped
// statements, an affected-row count for DML. Queries may be pipelined:
// multiple Query calls made before the loop ticks are all accepted and
// their callbacks fire in call order.
func (c *Client) Query(sql string, cb func(*QueryResult, error)) error {
	if err := c.requireConnected("query"); err != nil {
		return err
	}
	if cb == nil {
		return &UsageError{Op: "query", Message: "callback is required"}
	}
	n := getOpNode()
	n.kind = opQuery
	n.sql = []byte(sql)
	n.cb = opCallback{query: cb}
	c.enqueue(n)
	return nil
}

// Prepare compiles sql (with '?' placeholders) into a server-side
// prepared statement and hands back an opaque handle via cb.
func (c *Client) Prepare(sql string, cb func(StmtHandle, error)) error {
	if err := c.requireConnected("prepare"); err != nil {
		return err
	}
	if err := c.requireExclusive("prepare"); err != nil {
		return err
	}
	if cb == nil {
		return &UsageError{Op: "prepare", Message: "callback is required"}
	}
	n := getOpNode()
	n.kind = opPrepare
	n.sql = []byte(sql)
	n.cb = opCallback{prep: cb}
	c.enqueue(n)
	return nil
}

// Execute runs a previously prepared statement with params bound
// positionally, following the '?' placeholders in its SQL text.
func (c *Client) Execute(stmt StmtHandle, params []Param, cb func(*QueryResult, error)) error {
	if err := c.requireConnected("execute"); err != nil {
		return err
	}
	if _, ok := c.stmts.lookup(stmt); !ok {
		return &UsageError{Op: "execute", Message: "unknown or closed statement handle"}
	}
	if cb == nil {
		return &UsageError{Op: "execute", Message: "callback is required"}
	}
	n := getOpNode()
	n.kind = opExecute
	n.stmt = stmt
	n.params = params
	n.cb = opCallback{query: cb}
	c.enqueue(n)
	return nil
}

// CloseStmt releases the server-side prepared state behind stmt. Using
// stmt after cb fires is a contract violation the client does not
// detect beyond returning a usage error for further Execute calls.
func (c *Client) CloseStmt(stmt StmtHandle, cb func(error)) error {
	if err := c.requireConnected("close_stmt"); err != nil {
		return err
	}
	if err := c.requireExclusive("close_stmt"); err != nil {
		return err
	}
	if _, ok := c.stmts.lookup(stmt); !ok {
		return &UsageError{Op: "close_stmt", Message: "unknown or closed statement handle"}
	}
	n := getOpNode()
	n.kind = opStmtClose
	n.stmt = stmt
	n.cb = opCallback{plain: cb}
	c.enqueue(n)
	return nil
}

// StmtReset resets a prepared statement's server-side cursor without
// releasing it, allowing it to be executed again.
func (c *Client) StmtReset(stmt StmtHandle, cb func(error)) error {
	if err := c.requireConnected("stmt_reset"); err != nil {
		return err
	}
	if err := c.requireExclusive("stmt_reset"); err != nil {
		return err
	}
	if _, ok := c.stmts.lookup(stmt); !ok {
		return &UsageError{Op: "stmt_reset", Message: "unknown or closed statement handle"}
	}
	n := getOpNode()
	n.kind = opStmtReset
	n.stmt = stmt
	n.cb = opCallback{plain: cb}
	c.enqueue(n)
	return nil
}

// Ping checks that the connection is alive.
func (c *Client) Ping(cb func(error)) error {
	return c.enqueueUtility("ping", opPing, "", "", "", cb)
}

// SelectDB changes the default database for subsequent statements.
func (c *Client) SelectDB(db string, cb func(error)) error {
	return c.enqueueUtility("select_db", opSelectDB, "", "", db, cb)
}

// ChangeUser re-authenticates the connection as user, optionally
// switching database.
func (c *Client) ChangeUser(user, password, database string, cb func(error)) error {
	return c.enqueueUtility("change_user", opChangeUser, user, password, database, cb)
}

// ResetConnection resets session state server-side without a full
// reconnect.
func (c *Client) ResetConnection(cb func(error)) error {
	return c.enqueueUtility("reset_connection", opResetConnection, "", "", "", cb)
}

func (c *Client) enqueueUtility(op string, kind opKind, user, pass, db string, cb func(error)) error {
	if err := c.requireConnected(op); err != nil {
		return err
	}
	if err := c.requireExclusive(op); err != nil {
		return err
	}
	if cb == nil {
		return &UsageError{Op: op, Message: "callback is required"}
	}
	n := getOpNode()
	n.kind = kind
	n.user, n.pass, n.db = user, pass, db
	n.cb = opCallback{plain: cb}
	c.enqueue(n)
	return nil
}

// Escape returns s escaped for safe inclusion in a SQL statement,
// charset-aware if connected, falling back to the standalone escaper
// otherwise.
func (c *Client) Escape(s string) []byte {
	if c.connected && c.conn != nil {
		return c.conn.Escape(s)
	}
	return escapeBytes(s, false)
}
