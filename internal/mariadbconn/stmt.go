//go:build cgo

package mariadbconn

/*
#include <mysql.h>
#include <stdlib.h>
#include <string.h>

// allocBindArray allocates n zeroed MYSQL_BIND structs, since cgo cannot
// directly construct a C array type from Go.
static MYSQL_BIND *allocBindArray(size_t n) {
	return (MYSQL_BIND *)calloc(n, sizeof(MYSQL_BIND));
}
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/joeycumines/go-asyncmaria"
)

// Stmt binds one MYSQL_STMT handle to asyncmaria.Stmt.
type Stmt struct {
	stmt *C.MYSQL_STMT

	// paramBind/paramNull/paramLen back the MYSQL_BIND array passed to
	// mysql_stmt_bind_param for the most recent ExecuteStart call; kept
	// alive on the struct so cgo's pointer-passing rules are satisfied
	// for the duration of the pinned call.
	paramBind *C.MYSQL_BIND
	paramNull []C.my_bool
	paramLen  []C.ulong
}

var _ asyncmaria.Stmt = (*Stmt)(nil)

func (s *Stmt) ParamCount() int { return int(C.mysql_stmt_param_count(s.stmt)) }
func (s *Stmt) NumFields() int  { return int(C.mysql_stmt_field_count(s.stmt)) }

func (s *Stmt) ExecuteStart(params []asyncmaria.Param) (asyncmaria.WaitSet, error) {
	n := len(params)
	if n > 0 {
		s.paramBind = C.allocBindArray(C.size_t(n))
		s.paramNull = make([]C.my_bool, n)
		s.paramLen = make([]C.ulong, n)
		binds := (*[1 << 20]C.MYSQL_BIND)(unsafe.Pointer(s.paramBind))[:n:n]
		for i, p := range params {
			if p.Null {
				s.paramNull[i] = 1
				binds[i].buffer_type = C.MYSQL_TYPE_NULL
				binds[i].is_null = &s.paramNull[i]
				continue
			}
			s.paramLen[i] = C.ulong(len(p.Bytes))
			binds[i].buffer_type = C.MYSQL_TYPE_STRING
			if len(p.Bytes) > 0 {
				binds[i].buffer = unsafe.Pointer(&p.Bytes[0])
			}
			binds[i].buffer_length = C.ulong(len(p.Bytes))
			binds[i].length = &s.paramLen[i]
			binds[i].is_null = &s.paramNull[i]
		}
		if C.mysql_stmt_bind_param(s.stmt, s.paramBind) != 0 {
			return 0, errors.New(C.GoString(C.mysql_stmt_error(s.stmt)))
		}
	}
	var ret C.int
	status := C.mysql_stmt_execute_start(&ret, s.stmt)
	return toWaitSet(status), nil
}

func (s *Stmt) ExecuteCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_stmt_execute_cont(&ret, s.stmt, cEventMask(events))
	return toWaitSet(status), nil
}

func (s *Stmt) ExecuteResult() (fieldCount int, affected int64, insertID uint64, err error) {
	s.freeParamBind()
	if msg := C.GoString(C.mysql_stmt_error(s.stmt)); msg != "" {
		return 0, 0, 0, errors.New(msg)
	}
	return int(C.mysql_stmt_field_count(s.stmt)),
		int64(C.mysql_stmt_affected_rows(s.stmt)),
		uint64(C.mysql_stmt_insert_id(s.stmt)),
		nil
}

func (s *Stmt) freeParamBind() {
	if s.paramBind != nil {
		C.free(unsafe.Pointer(s.paramBind))
		s.paramBind = nil
		s.paramNull = nil
		s.paramLen = nil
	}
}

func (s *Stmt) StoreStart() (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_stmt_store_result_start(&ret, s.stmt)
	return toWaitSet(status), nil
}

func (s *Stmt) StoreCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.int
	status := C.mysql_stmt_store_result_cont(&ret, s.stmt, cEventMask(events))
	return toWaitSet(status), nil
}

func (s *Stmt) StoreResult() (asyncmaria.BinaryResult, error) {
	if msg := C.GoString(C.mysql_stmt_error(s.stmt)); msg != "" {
		return nil, errors.New(msg)
	}
	meta := C.mysql_stmt_result_metadata(s.stmt)
	return &binaryResult{stmt: s.stmt, meta: meta, numFields: int(C.mysql_stmt_field_count(s.stmt))}, nil
}

func (s *Stmt) ResetStart() (asyncmaria.WaitSet, error) {
	var ret C.my_bool
	status := C.mysql_stmt_reset_start(&ret, s.stmt)
	return toWaitSet(status), nil
}

func (s *Stmt) ResetCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.my_bool
	status := C.mysql_stmt_reset_cont(&ret, s.stmt, cEventMask(events))
	return toWaitSet(status), nil
}

func (s *Stmt) ResetResult() error { return s.errIfSet() }

func (s *Stmt) CloseStart() (asyncmaria.WaitSet, error) {
	var ret C.my_bool
	status := C.mysql_stmt_close_start(&ret, s.stmt)
	return toWaitSet(status), nil
}

func (s *Stmt) CloseCont(events asyncmaria.WaitSet) (asyncmaria.WaitSet, error) {
	var ret C.my_bool
	status := C.mysql_stmt_close_cont(&ret, s.stmt, cEventMask(events))
	return toWaitSet(status), nil
}

func (s *Stmt) CloseResult() error {
	s.stmt = nil
	return nil
}

func (s *Stmt) errIfSet() error {
	if msg := C.GoString(C.mysql_stmt_error(s.stmt)); msg != "" {
		return errors.New(msg)
	}
	return nil
}
