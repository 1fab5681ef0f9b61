package asyncmaria

// Conn is the non-blocking connector handle the state machine drives. It
// is satisfied by internal/mariadbconn's cgo binding to MariaDB
// Connector/C in production, and by a synthetic fake in tests. Every
// <Op>Start/<Op>Cont pair mirrors a real mysql_<op>_start/_cont call: the
// returned WaitSet is the connector's wait-mask, zero meaning the
// operation finished synchronously and its <Op>Result is already
// available.
//
// Conn implementations are not safe for concurrent use; the spec's
// single-threaded cooperative model means exactly one method is ever
// in flight at a time.
type Conn interface {
	// FD returns the socket file descriptor. Valid only once a connect
	// attempt has produced one; re-fetched by the Lifecycle Manager after
	// every Reset.
	FD() int

	// TimeoutMillis reports the connector's currently remaining timeout,
	// in milliseconds, for arming the Watcher Adapter's timer.
	TimeoutMillis() int

	ConnectStart(cfg ConnectConfig) (WaitSet, error)
	ConnectCont(events WaitSet) (WaitSet, error)

	// SendStart/SendCont write a query's text to the wire only
	// (mysql_send_query), the decoupling that makes pipelining possible:
	// many sends can complete before any result is read.
	SendStart(sql []byte) (WaitSet, error)
	SendCont(events WaitSet) (WaitSet, error)

	// ReadResultStart/ReadResultCont read the response header for the
	// earliest query that was sent but not yet read (mysql_read_query_result).
	ReadResultStart() (WaitSet, error)
	ReadResultCont(events WaitSet) (WaitSet, error)
	// QueryResult reports the outcome of the most recently completed
	// ReadResultStart/Cont chain: fieldCount > 0 means a result set is
	// available via StoreResultStart; fieldCount == 0 means a DML
	// statement completed and affected/insertID are populated.
	QueryResult() (fieldCount int, affected int64, insertID uint64, err error)

	StoreResultStart() (WaitSet, error)
	StoreResultCont(events WaitSet) (WaitSet, error)
	StoreResultResult() (TextResult, error)

	// MoreResults is a cheap synchronous check (mysql_more_results) of
	// whether the connection has additional result sets queued up after
	// a multi-statement query, used to decide whether to enter drain.
	MoreResults() bool

	NextResultStart() (WaitSet, error)
	NextResultCont(events WaitSet) (WaitSet, error)
	NextResultResult() (more bool, err error)

	PingStart() (WaitSet, error)
	PingCont(events WaitSet) (WaitSet, error)
	PingResult() error

	ChangeUserStart(user, password, db string) (WaitSet, error)
	ChangeUserCont(events WaitSet) (WaitSet, error)
	ChangeUserResult() error

	SelectDBStart(db string) (WaitSet, error)
	SelectDBCont(events WaitSet) (WaitSet, error)
	SelectDBResult() error

	ResetConnectionStart() (WaitSet, error)
	ResetConnectionCont(events WaitSet) (WaitSet, error)
	ResetConnectionResult() error

	PrepareStart(sql []byte) (WaitSet, error)
	PrepareCont(events WaitSet) (WaitSet, error)
	PrepareResult() (Stmt, error)

	// Escape performs a charset-aware escape using the live connection.
	Escape(s string) []byte

	Close() error

	ErrorMessage() string
	ErrorNumber() int
	SQLState() string
	InsertID() uint64
	WarningCount() uint32
	Info() string
	ServerVersion() string
	ServerInfo() string
	ThreadID() uint64
	HostInfo() string
	CharacterSetName() string
}

// ConnectConfig carries the parameters and option bag a connect attempt
// applies before calling ConnectStart, mirroring §4.6 and §6's
// configuration surface.
type ConnectConfig struct {
	Host       string
	User       string
	Password   string
	Database   string
	Port       uint16
	UnixSocket string

	ConnectTimeoutMS int
	ReadTimeoutMS    int
	WriteTimeoutMS   int
	Compress         bool
	MultiStatements  bool
	Charset          string
	InitCommand      string

	SSLKey        string
	SSLCert       string
	SSLCA         string
	SSLCipher     string
	SSLVerifyPeer bool
}

// TextResult iterates a plain-query result set: one row at a time, each
// cell either a byte string of the reported length or nil for SQL NULL.
// Implementations buffer the full result set (mysql_store_result
// semantics), so Next never blocks or returns a wait-set.
type TextResult interface {
	NumFields() int
	// Next returns the next row, or ok == false once exhausted.
	Next() (row []Cell, ok bool, err error)
	Close()
}

// Cell is one column of one row: either a byte string or SQL NULL.
type Cell struct {
	Bytes []byte
	Null  bool
}

// Stmt is an opaque, server-side prepared statement handle exposed by the
// connector. The core wraps it behind a StmtHandle arena index (see
// stmt.go) so user code never sees a Stmt or a pointer.
type Stmt interface {
	ParamCount() int
	NumFields() int

	ExecuteStart(params []Param) (WaitSet, error)
	ExecuteCont(events WaitSet) (WaitSet, error)
	ExecuteResult() (fieldCount int, affected int64, insertID uint64, err error)

	StoreStart() (WaitSet, error)
	StoreCont(events WaitSet) (WaitSet, error)
	StoreResult() (BinaryResult, error)

	ResetStart() (WaitSet, error)
	ResetCont(events WaitSet) (WaitSet, error)
	ResetResult() error

	CloseStart() (WaitSet, error)
	CloseCont(events WaitSet) (WaitSet, error)
	CloseResult() error
}

// Param is one bound execute() argument: a byte string, or Null == true
// for SQL NULL. The core never infers types beyond "bytes or null" per
// the spec's non-goals.
type Param struct {
	Bytes []byte
	Null  bool
}

// BinaryResult is the connector-side column cursor a prepared statement's
// StoreResult hands back. MaxLength reports the server's advertised
// upper bound per column, used by the Row Materialiser to size its
// initial buffers; Fetch/FetchColumn implement mysql_stmt_fetch and
// mysql_stmt_fetch_column, including the truncation-refetch contract.
type BinaryResult interface {
	NumFields() int
	MaxLength(col int) uint64

	// Bind installs the Row Materialiser's output buffers for the next
	// Fetch call, mirroring mysql_stmt_bind_result.
	Bind(buffers [][]byte) error

	// Fetch advances to the next row, filling the bound buffers. It
	// reports, per column, whether the actual value was longer than the
	// bound buffer (truncated) so the caller can refetch via
	// FetchColumn. done is true once the result set is exhausted.
	Fetch() (isNull []bool, lengths []uint64, truncated []bool, done bool, err error)

	// FetchColumn refills buf with the full value of column idx from the
	// current row, for use after Fetch reports it truncated.
	FetchColumn(idx int, buf []byte) error

	Close()
}
