package asyncmaria

import (
	"fmt"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
)

// fakeLoop is a minimal EventLoop that never actually waits on I/O: every
// canned Conn operation in this package's tests completes synchronously
// (WaitSet.Done()), so the watcher adapter only needs bind/unbind/clear
// bookkeeping to work, never a real poll loop.
type fakeLoop struct {
	registered    map[int]func(eventloop.IOEvents)
	modifyLog     []eventloop.IOEvents
	registerCalls int
	unregisterLog []int

	lastTimerFn func()
	lastTimerD  time.Duration
	timerCount  int
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{registered: make(map[int]func(eventloop.IOEvents))}
}

func (l *fakeLoop) RegisterFD(fd int, events eventloop.IOEvents, cb func(eventloop.IOEvents)) error {
	l.registered[fd] = cb
	l.registerCalls++
	return nil
}

func (l *fakeLoop) UnregisterFD(fd int) error {
	delete(l.registered, fd)
	l.unregisterLog = append(l.unregisterLog, fd)
	return nil
}

func (l *fakeLoop) ModifyFD(fd int, events eventloop.IOEvents) error {
	l.modifyLog = append(l.modifyLog, events)
	return nil
}

func (l *fakeLoop) ScheduleTimer(d time.Duration, fn func()) error {
	l.timerCount++
	l.lastTimerD = d
	l.lastTimerFn = fn
	return nil
}

// fakeResult is one canned outcome for a query or execute: either a
// result set (fieldCount > 0, rows populated) or a DML outcome
// (fieldCount == 0, affected/insertID populated), or an error.
type fakeResult struct {
	fieldCount int
	affected   int64
	insertID   uint64
	rows       [][]Cell
	opErr      error // delivered as the query's own error, pipeline continues
}

// fakeConn is a synchronous, fully scripted asyncmaria.Conn: every
// *_start call completes immediately (WaitSet 0), so tests never need a
// real reactor tick. sendLog/resultQ model the same send/read split the
// real connector exposes, letting tests exercise pipelining depth and
// FIFO ordering directly.
type fakeConn struct {
	fd int

	connectErr error

	sendLog   []string
	resultQ   []fakeResult
	activeMsg string // ErrorMessage() for whatever op most recently ran

	stmts      map[StmtHandle]*fakeStmt
	nextStmtID uint64
	prepareErr error
	prepareRes fakeResult // fieldCount/rows describe Execute's result when no per-call override is queued

	pingErr       error
	selectDBErr   error
	changeUserErr error
	resetConnErr  error

	moreResults bool
	closed      bool

	// failSend/failRead simulate a fatal connection error surfacing from
	// the Send/ReadResult start step (a dropped socket, a write error);
	// consumed once and cleared, like a scripted one-shot fault.
	failSend error
	failRead error
}

func newFakeConn() *fakeConn {
	return &fakeConn{fd: 42, stmts: make(map[StmtHandle]*fakeStmt)}
}

var _ Conn = (*fakeConn)(nil)

func (c *fakeConn) FD() int             { return c.fd }
func (c *fakeConn) TimeoutMillis() int  { return 1000 }

func (c *fakeConn) ConnectStart(cfg ConnectConfig) (WaitSet, error) {
	if c.connectErr != nil {
		return 0, c.connectErr
	}
	return 0, nil
}
func (c *fakeConn) ConnectCont(events WaitSet) (WaitSet, error)     { return 0, nil }

func (c *fakeConn) SendStart(sql []byte) (WaitSet, error) {
	if c.failSend != nil {
		err := c.failSend
		c.failSend = nil
		return 0, err
	}
	c.sendLog = append(c.sendLog, string(sql))
	return 0, nil
}
func (c *fakeConn) SendCont(events WaitSet) (WaitSet, error) { return 0, nil }

func (c *fakeConn) ReadResultStart() (WaitSet, error) {
	if c.failRead != nil {
		err := c.failRead
		c.failRead = nil
		return 0, err
	}
	return 0, nil
}
func (c *fakeConn) ReadResultCont(events WaitSet) (WaitSet, error) { return 0, nil }

// QueryResult reports the head of resultQ. A DML outcome (fieldCount ==
// 0) or an error is fully resolved here and popped immediately, since
// neither triggers a StoreResult step; a result set (fieldCount > 0) is
// left in place for StoreResultResult to claim.
func (c *fakeConn) QueryResult() (fieldCount int, affected int64, insertID uint64, err error) {
	if len(c.resultQ) == 0 {
		return 0, 0, 0, nil
	}
	r := c.resultQ[0]
	if r.opErr != nil {
		c.activeMsg = r.opErr.Error()
		c.resultQ = c.resultQ[1:]
		return 0, 0, 0, r.opErr
	}
	c.activeMsg = ""
	if r.fieldCount == 0 {
		c.resultQ = c.resultQ[1:]
	}
	return r.fieldCount, r.affected, r.insertID, nil
}

func (c *fakeConn) StoreResultStart() (WaitSet, error) { return 0, nil }
func (c *fakeConn) StoreResultCont(events WaitSet) (WaitSet, error) { return 0, nil }

func (c *fakeConn) StoreResultResult() (TextResult, error) {
	r := c.resultQ[0]
	c.resultQ = c.resultQ[1:]
	return &fakeTextResult{rows: r.rows, numFields: r.fieldCount}, nil
}

func (c *fakeConn) MoreResults() bool { return c.moreResults }

func (c *fakeConn) NextResultStart() (WaitSet, error) { return 0, nil }
func (c *fakeConn) NextResultCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (c *fakeConn) NextResultResult() (more bool, err error) {
	more = c.moreResults
	c.moreResults = false
	return more, nil
}

func (c *fakeConn) PingStart() (WaitSet, error) { return 0, nil }
func (c *fakeConn) PingCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (c *fakeConn) PingResult() error { return c.pingErr }

func (c *fakeConn) ChangeUserStart(user, password, db string) (WaitSet, error) { return 0, nil }
func (c *fakeConn) ChangeUserCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (c *fakeConn) ChangeUserResult() error { return c.changeUserErr }

func (c *fakeConn) SelectDBStart(db string) (WaitSet, error) { return 0, nil }
func (c *fakeConn) SelectDBCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (c *fakeConn) SelectDBResult() error { return c.selectDBErr }

func (c *fakeConn) ResetConnectionStart() (WaitSet, error) { return 0, nil }
func (c *fakeConn) ResetConnectionCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (c *fakeConn) ResetConnectionResult() error { return c.resetConnErr }

func (c *fakeConn) PrepareStart(sql []byte) (WaitSet, error) { return 0, nil }
func (c *fakeConn) PrepareCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (c *fakeConn) PrepareResult() (Stmt, error) {
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	c.nextStmtID++
	st := &fakeStmt{id: c.nextStmtID, execResult: c.prepareRes}
	return st, nil
}

func (c *fakeConn) Escape(s string) []byte { return escapeBytes(s, false) }

func (c *fakeConn) Close() error { c.closed = true; return nil }

func (c *fakeConn) ErrorMessage() string     { return c.activeMsg }
func (c *fakeConn) ErrorNumber() int         { return 0 }
func (c *fakeConn) SQLState() string         { return "" }
func (c *fakeConn) InsertID() uint64         { return 0 }
func (c *fakeConn) WarningCount() uint32     { return 0 }
func (c *fakeConn) Info() string             { return "" }
func (c *fakeConn) ServerVersion() string    { return "fake-1.0" }
func (c *fakeConn) ServerInfo() string       { return "fake" }
func (c *fakeConn) ThreadID() uint64         { return 7 }
func (c *fakeConn) HostInfo() string         { return "fake socket" }
func (c *fakeConn) CharacterSetName() string { return "utf8mb4" }

// fakeTextResult is the TextResult fakeConn.StoreResultResult hands back.
type fakeTextResult struct {
	rows      [][]Cell
	numFields int
	idx       int
	closed    bool
}

func (r *fakeTextResult) NumFields() int { return r.numFields }

func (r *fakeTextResult) Next() (row []Cell, ok bool, err error) {
	if r.idx >= len(r.rows) {
		return nil, false, nil
	}
	row = r.rows[r.idx]
	r.idx++
	return row, true, nil
}

func (r *fakeTextResult) Close() { r.closed = true }

// fakeStmt is a scripted Stmt: Execute always succeeds synchronously and
// returns whatever execResult was configured on it at prepare time
// (tests mutate it directly before calling Client.Execute).
type fakeStmt struct {
	id         uint64
	paramCount int
	execResult fakeResult
	executeErr error
	storeErr   error
	closed     bool
	resetCount int
}

var _ Stmt = (*fakeStmt)(nil)

func (s *fakeStmt) ParamCount() int { return s.paramCount }
func (s *fakeStmt) NumFields() int  { return s.execResult.fieldCount }

func (s *fakeStmt) ExecuteStart(params []Param) (WaitSet, error) { return 0, nil }
func (s *fakeStmt) ExecuteCont(events WaitSet) (WaitSet, error)  { return 0, nil }
func (s *fakeStmt) ExecuteResult() (fieldCount int, affected int64, insertID uint64, err error) {
	if s.executeErr != nil {
		return 0, 0, 0, s.executeErr
	}
	r := s.execResult
	return r.fieldCount, r.affected, r.insertID, nil
}

func (s *fakeStmt) StoreStart() (WaitSet, error) { return 0, nil }
func (s *fakeStmt) StoreCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (s *fakeStmt) StoreResult() (BinaryResult, error) {
	if s.storeErr != nil {
		return nil, s.storeErr
	}
	return &fakeBinaryResult{rows: s.execResult.rows, numFields: s.execResult.fieldCount}, nil
}

func (s *fakeStmt) ResetStart() (WaitSet, error) { return 0, nil }
func (s *fakeStmt) ResetCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (s *fakeStmt) ResetResult() error { s.resetCount++; return nil }

func (s *fakeStmt) CloseStart() (WaitSet, error) { return 0, nil }
func (s *fakeStmt) CloseCont(events WaitSet) (WaitSet, error) { return 0, nil }
func (s *fakeStmt) CloseResult() error { s.closed = true; return nil }

// fakeBinaryResult drives materializeBinary's truncation-refetch path:
// any cell longer than truncateAt (if set) is first reported truncated,
// then refetched in full via FetchColumn, exactly like a real
// BinaryResult bound to an undersized buffer.
type fakeBinaryResult struct {
	rows       [][]Cell
	numFields  int
	idx        int
	buffers    [][]byte
	truncateAt int // 0 means never truncate
	closed     bool
}

func (r *fakeBinaryResult) NumFields() int          { return r.numFields }
func (r *fakeBinaryResult) MaxLength(col int) uint64 { return 512 }

func (r *fakeBinaryResult) Bind(buffers [][]byte) error {
	r.buffers = buffers
	return nil
}

func (r *fakeBinaryResult) Fetch() (isNull []bool, lengths []uint64, truncated []bool, done bool, err error) {
	if r.idx >= len(r.rows) {
		return nil, nil, nil, true, nil
	}
	row := r.rows[r.idx]
	r.idx++
	n := r.numFields
	isNull = make([]bool, n)
	lengths = make([]uint64, n)
	truncated = make([]bool, n)
	for i := 0; i < n && i < len(row); i++ {
		c := row[i]
		if c.Null {
			isNull[i] = true
			continue
		}
		lengths[i] = uint64(len(c.Bytes))
		if r.truncateAt > 0 && len(c.Bytes) > r.truncateAt {
			truncated[i] = true
			n := copy(r.buffers[i], c.Bytes[:r.truncateAt])
			_ = n
			continue
		}
		copy(r.buffers[i], c.Bytes)
	}
	return isNull, lengths, truncated, false, nil
}

func (r *fakeBinaryResult) FetchColumn(idx int, buf []byte) error {
	row := r.rows[r.idx-1]
	copy(buf, row[idx].Bytes)
	return nil
}

func (r *fakeBinaryResult) Close() { r.closed = true }

func cellsFromStrings(vals ...string) []Cell {
	cells := make([]Cell, len(vals))
	for i, v := range vals {
		cells[i] = Cell{Bytes: []byte(v)}
	}
	return cells
}

func nullCell() Cell { return Cell{Null: true} }

func mustNewClient(loop EventLoop, conn *fakeConn) *Client {
	c, err := New(loop, func() Conn { return conn })
	if err != nil {
		panic(fmt.Sprintf("New: %v", err))
	}
	return c
}
