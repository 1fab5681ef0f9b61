//go:build cgo

package mariadbconn

/*
#cgo pkg-config: libmariadb
#include <mysql.h>
#include <errmsg.h>
#include <stdlib.h>

// MariaDB Connector/C's nonblocking API reports readiness through
// MYSQL_WAIT_READ/WRITE/EXCEPT/TIMEOUT bits, the same constants the
// original perl5-ev-mariadb module switches on. We redeclare the values
// here rather than relying on preprocessor visibility across cgo's
// boundary.
static const int waitRead    = MYSQL_WAIT_READ;
static const int waitWrite   = MYSQL_WAIT_WRITE;
static const int waitExcept  = MYSQL_WAIT_EXCEPT;
static const int waitTimeout = MYSQL_WAIT_TIMEOUT;
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/joeycumines/go-asyncmaria"
)

// toWaitSet maps a MYSQL_WAIT_* bitmask returned by a _start/_cont call
// onto asyncmaria.WaitSet. MYSQL_WAIT_EXCEPT folds into WaitRead: the
// watcher adapter only distinguishes readable/writable/timeout, and a
// socket exception is reported the same way a readable event is (both
// mean "call the _cont function now").
func toWaitSet(status C.int) asyncmaria.WaitSet {
	var w asyncmaria.WaitSet
	if status&C.waitRead != 0 || status&C.waitExcept != 0 {
		w |= asyncmaria.WaitRead
	}
	if status&C.waitWrite != 0 {
		w |= asyncmaria.WaitWrite
	}
	if status&C.waitTimeout != 0 {
		w |= asyncmaria.WaitTimeout
	}
	return w
}

// Conn binds one MYSQL handle to asyncmaria.Conn. It is not safe for
// concurrent use, matching the single-threaded cooperative contract the
// core drives it under.
type Conn struct {
	my *C.MYSQL

	// clientFlags accumulates the CLIENT_* bits ConnectStart passes to
	// mysql_real_connect_start, computed from ConnectConfig by
	// applyOptions since the connect flags (unlike most options) are an
	// argument to the connect call itself, not a mysql_options() knob.
	clientFlags C.ulong

	// pendingStmt holds the MYSQL_STMT* created by PrepareStart until
	// PrepareResult claims or discards it.
	pendingStmt *C.MYSQL_STMT

	// nextResultRet stashes mysql_next_result's synchronous return code
	// (0 = another result set is ready, -1 = none remain, >0 = error)
	// across the Start/Cont split so NextResultResult can read it once
	// the wait-set reports completion.
	nextResultRet C.int

	// pendingRes stashes the MYSQL_RES* mysql_store_result_cont hands
	// back across the Start/Cont split, for StoreResultResult to claim.
	pendingRes *C.MYSQL_RES
}

// New allocates an unconnected MYSQL handle and enables the nonblocking
// API on it (mysql_options(MYSQL_OPT_NONBLOCK)), ready for ConnectStart.
// Matches the asyncmaria.New `newConn func() asyncmaria.Conn` factory
// shape: called once per Connect and once per Reset.
func New() *Conn {
	my := C.mysql_init(nil)
	if my == nil {
		panic("mariadbconn: mysql_init returned nil (out of memory)")
	}
	C.mysql_options(my, C.MYSQL_OPT_NONBLOCK, nil)
	return &Conn{my: my}
}

var _ asyncmaria.Conn = (*Conn)(nil)

func (c *Conn) FD() int {
	return int(C.mysql_get_socket(c.my))
}

func (c *Conn) TimeoutMillis() int {
	return int(C.mysql_get_timeout_value_ms(c.my))
}

func (c *Conn) ConnectStart(cfg asyncmaria.ConnectConfig) (asyncmaria.WaitSet, error) {
	c.applyOptions(cfg)

	host := cOptionalString(cfg.Host)
	user := cOptionalString(cfg.User)
	passwd := cOptionalString(cfg.Password)
	db := cOptionalString(cfg.Database)
	unixSocket := cOptionalString(cfg.UnixSocket)
	defer freeAll(host, user, passwd, db, unixSocket)

	var ret *C.MYSQL
	status := C.mysql_real_connect_start(&ret, c.my, host, user, passwd, db,
		C.uint(cfg.Port), unixSocket, c.clientFlags)
	return toWaitSet(status), nil
}

func (c *Conn) ConnectCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret *C.MYSQL
	status := C.mysql_real_connect_cont(&ret, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

// applyOptions sets every mysql_options() knob the spec's option surface
// covers; called once per connect attempt so changes made via WithXxx
// between an initial connect and a later Reset take effect.
func (c *Conn) applyOptions(cfg asyncmaria.ConnectConfig) {
	if cfg.ConnectTimeoutMS > 0 {
		v := C.uint(cfg.ConnectTimeoutMS / 1000)
		C.mysql_options(c.my, C.MYSQL_OPT_CONNECT_TIMEOUT, unsafe.Pointer(&v))
	}
	if cfg.ReadTimeoutMS > 0 {
		v := C.uint(cfg.ReadTimeoutMS / 1000)
		C.mysql_options(c.my, C.MYSQL_OPT_READ_TIMEOUT, unsafe.Pointer(&v))
	}
	if cfg.WriteTimeoutMS > 0 {
		v := C.uint(cfg.WriteTimeoutMS / 1000)
		C.mysql_options(c.my, C.MYSQL_OPT_WRITE_TIMEOUT, unsafe.Pointer(&v))
	}
	if cfg.Compress {
		C.mysql_options(c.my, C.MYSQL_OPT_COMPRESS, nil)
	}
	if cfg.Charset != "" {
		charset := C.CString(cfg.Charset)
		defer C.free(unsafe.Pointer(charset))
		C.mysql_options(c.my, C.MYSQL_SET_CHARSET_NAME, unsafe.Pointer(charset))
	}
	if cfg.InitCommand != "" {
		initCmd := C.CString(cfg.InitCommand)
		defer C.free(unsafe.Pointer(initCmd))
		C.mysql_options(c.my, C.MYSQL_INIT_COMMAND, unsafe.Pointer(initCmd))
	}
	c.clientFlags = 0
	if cfg.MultiStatements {
		c.clientFlags |= C.CLIENT_MULTI_STATEMENTS | C.CLIENT_MULTI_RESULTS
	}
	if cfg.SSLKey != "" || cfg.SSLCert != "" || cfg.SSLCA != "" || cfg.SSLCipher != "" {
		key := cOptionalString(cfg.SSLKey)
		cert := cOptionalString(cfg.SSLCert)
		ca := cOptionalString(cfg.SSLCA)
		cipher := cOptionalString(cfg.SSLCipher)
		defer freeAll(key, cert, ca, cipher)
		C.mysql_ssl_set(c.my, key, cert, ca, nil, cipher)
	}
	verify := C.my_bool(0)
	if cfg.SSLVerifyPeer {
		verify = 1
	}
	C.mysql_options(c.my, C.MYSQL_OPT_SSL_VERIFY_SERVER_CERT, unsafe.Pointer(&verify))
}

func (c *Conn) SendStart(sql []byte) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_send_query_start(&ret, c.my, (*C.char)(unsafe.Pointer(&sql[0])), C.ulong(len(sql)))
	return toWaitSet(status), nil
}

func (c *Conn) SendCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_send_query_cont(&ret, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

func (c *Conn) ReadResultStart() (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_read_query_result_start(&ret, c.my)
	return toWaitSet(status), nil
}

func (c *Conn) ReadResultCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_read_query_result_cont(&ret, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

func (c *Conn) QueryResult() (fieldCount int, affected int64, insertID uint64, err error) {
	if msg := c.ErrorMessage(); msg != "" {
		return 0, 0, 0, errors.New(msg)
	}
	fieldCount = int(C.mysql_field_count(c.my))
	affected = int64(C.mysql_affected_rows(c.my))
	insertID = uint64(C.mysql_insert_id(c.my))
	return fieldCount, affected, insertID, nil
}

func (c *Conn) StoreResultStart() (asyncmaria.WaitSet, error) {
	status := C.mysql_store_result_start(&c.pendingRes, c.my)
	return toWaitSet(status), nil
}

func (c *Conn) StoreResultCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	status := C.mysql_store_result_cont(&c.pendingRes, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

func (c *Conn) StoreResultResult() (asyncmaria.TextResult, error) {
	res := c.pendingRes
	c.pendingRes = nil
	if res == nil {
		if msg := c.ErrorMessage(); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, errors.New("mariadbconn: store_result produced no handle")
	}
	return &textResult{res: res, numFields: int(C.mysql_num_fields(res))}, nil
}

func (c *Conn) MoreResults() bool {
	return C.mysql_more_results(c.my) != 0
}

func (c *Conn) NextResultStart() (asyncmaria.WaitSet, error) {
	status := C.mysql_next_result_start(&c.nextResultRet, c.my)
	return toWaitSet(status), nil
}

func (c *Conn) NextResultCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	status := C.mysql_next_result_cont(&c.nextResultRet, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

// NextResultResult interprets mysql_next_result's synchronous return
// code: 0 means a further result set is ready, -1 means none remain, >0
// means an error occurred fetching it.
func (c *Conn) NextResultResult() (more bool, err error) {
	switch {
	case c.nextResultRet == 0:
		return true, nil
	case c.nextResultRet < 0:
		return false, nil
	default:
		return false, c.errIfSet()
	}
}

func (c *Conn) PingStart() (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_ping_start(&ret, c.my)
	return toWaitSet(status), nil
}

func (c *Conn) PingCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_ping_cont(&ret, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

func (c *Conn) PingResult() error { return c.errIfSet() }

func (c *Conn) ChangeUserStart(user, password, db string) (asyncmaria.WaitSet, error) {
	cuser := C.CString(user)
	cpass := C.CString(password)
	cdb := cOptionalString(db)
	defer freeAll(cuser, cpass, cdb)
	var ret C.my_bool
	status := C.mysql_change_user_start(&ret, c.my, cuser, cpass, cdb)
	return toWaitSet(status), nil
}

func (c *Conn) ChangeUserCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.my_bool
	status := C.mysql_change_user_cont(&ret, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

func (c *Conn) ChangeUserResult() error { return c.errIfSet() }

func (c *Conn) SelectDBStart(db string) (asyncmaria.WaitSet, error) {
	cdb := C.CString(db)
	defer C.free(unsafe.Pointer(cdb))
	var ret C.int
	status := C.mysql_select_db_start(&ret, c.my, cdb)
	return toWaitSet(status), nil
}

func (c *Conn) SelectDBCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_select_db_cont(&ret, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

func (c *Conn) SelectDBResult() error { return c.errIfSet() }

func (c *Conn) ResetConnectionStart() (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_reset_connection_start(&ret, c.my)
	return toWaitSet(status), nil
}

func (c *Conn) ResetConnectionCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_reset_connection_cont(&ret, c.my, cEventMask(events))
	return toWaitSet(status), nil
}

func (c *Conn) ResetConnectionResult() error { return c.errIfSet() }

func (c *Conn) PrepareStart(sql []byte) (asyncmaria.WaitSet, error) {
	stmt := C.mysql_stmt_init(c.my)
	if stmt == nil {
		return 0, errors.New("mariadbconn: mysql_stmt_init failed")
	}
	c.pendingStmt = stmt
	var ret C.int
	status := C.mysql_stmt_prepare_start(&ret, stmt, (*C.char)(unsafe.Pointer(&sql[0])), C.ulong(len(sql)))
	return toWaitSet(status), nil
}

func (c *Conn) PrepareCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_stmt_prepare_cont(&ret, c.pendingStmt, cEventMask(events))
	return toWaitSet(status), nil
}

func (c *Conn) PrepareResult() (asyncmaria.Stmt, error) {
	stmt := c.pendingStmt
	c.pendingStmt = nil
	if msg := C.GoString(C.mysql_stmt_error(stmt)); msg != "" {
		C.mysql_stmt_close(stmt)
		return nil, errors.New(msg)
	}
	return &Stmt{stmt: stmt}, nil
}

func (c *Conn) Escape(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	in := []byte(s)
	out := make([]byte, len(in)*2+1)
	n := C.mysql_real_escape_string(c.my,
		(*C.char)(unsafe.Pointer(&out[0])),
		(*C.char)(unsafe.Pointer(&in[0])),
		C.ulong(len(in)))
	return out[:int(n)]
}

func (c *Conn) Close() error {
	C.mysql_close(c.my)
	c.my = nil
	return nil
}

func (c *Conn) ErrorMessage() string       { return C.GoString(C.mysql_error(c.my)) }
func (c *Conn) ErrorNumber() int           { return int(C.mysql_errno(c.my)) }
func (c *Conn) SQLState() string           { return C.GoString(C.mysql_sqlstate(c.my)) }
func (c *Conn) InsertID() uint64           { return uint64(C.mysql_insert_id(c.my)) }
func (c *Conn) WarningCount() uint32       { return uint32(C.mysql_warning_count(c.my)) }
func (c *Conn) Info() string               { return C.GoString(C.mysql_info(c.my)) }
func (c *Conn) ServerVersion() string      { return fmt.Sprintf("%d", int(C.mysql_get_server_version(c.my))) }
func (c *Conn) ServerInfo() string         { return C.GoString(C.mysql_get_server_info(c.my)) }
func (c *Conn) ThreadID() uint64           { return uint64(C.mysql_thread_id(c.my)) }
func (c *Conn) HostInfo() string           { return C.GoString(C.mysql_get_host_info(c.my)) }
func (c *Conn) CharacterSetName() string   { return C.GoString(C.mysql_character_set_name(c.my)) }

func (c *Conn) errIfSet() error {
	if msg := c.ErrorMessage(); msg != "" {
		return errors.New(msg)
	}
	return nil
}

func cEventMask(w asyncmaria.WaitSet) C.int {
	var m C.int
	if w&asyncmaria.WaitRead != 0 {
		m |= C.waitRead
	}
	if w&asyncmaria.WaitWrite != 0 {
		m |= C.waitWrite
	}
	if w&asyncmaria.WaitTimeout != 0 {
		m |= C.waitTimeout
	}
	return m
}

func cOptionalString(s string) *C.char {
	if s == "" {
		return nil
	}
	return C.CString(s)
}

func freeAll(ptrs ...*C.char) {
	for _, p := range ptrs {
		if p != nil {
			C.free(unsafe.Pointer(p))
		}
	}
}
