//go:build cgo

package mariadbconn

/*
#include <mysql.h>
#include <stdlib.h>

// allocBindArray allocates n zeroed MYSQL_BIND structs; duplicated here
// from stmt.go's preamble since cgo compiles each file's preamble as an
// independent translation unit.
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

// binaryResult adapts a buffered prepared-statement result (the product
// of mysql_stmt_store_result_start/cont) to asyncmaria.BinaryResult.
type binaryResult struct {
	stmt      *C.MYSQL_STMT
	meta      *C.MYSQL_RES
	numFields int

	bind   *C.MYSQL_BIND
	isNull []C.my_bool
	length []C.ulong
	err    []C.my_bool
}

var _ asyncmaria.BinaryResult = (*binaryResult)(nil)

func (r *binaryResult) NumFields() int { return r.numFields }

func (r *binaryResult) MaxLength(col int) uint64 {
	if r.meta == nil || col < 0 || col >= r.numFields {
		return 0
	}
	field := C.mysql_fetch_field_direct(r.meta, C.uint(col))
	if field == nil {
		return 0
	}
	return uint64(field.max_length)
}

func (r *binaryResult) Bind(buffers [][]byte) error {
	n := r.numFields
	r.bind = C.allocBindArray(C.size_t(n))
	r.isNull = make([]C.my_bool, n)
	r.length = make([]C.ulong, n)
	r.err = make([]C.my_bool, n)
	binds := (*[1 << 20]C.MYSQL_BIND)(unsafe.Pointer(r.bind))[:n:n]
	for i := 0; i < n; i++ {
		binds[i].buffer_type = C.MYSQL_TYPE_STRING
		if len(buffers[i]) > 0 {
			binds[i].buffer = unsafe.Pointer(&buffers[i][0])
		}
		binds[i].buffer_length = C.ulong(len(buffers[i]))
		binds[i].is_null = &r.isNull[i]
		binds[i].length = &r.length[i]
		binds[i].error = &r.err[i]
	}
	if C.mysql_stmt_bind_result(r.stmt, r.bind) != 0 {
		return errors.New(C.GoString(C.mysql_stmt_error(r.stmt)))
	}
	return nil
}

// Fetch advances to the next row. The result set is already fully
// buffered by StoreResult, so mysql_stmt_fetch never blocks here; it is
// only split from a nonblocking *_start/_cont pair upstream, at
// mysql_stmt_store_result_start/cont.
func (r *binaryResult) Fetch() (isNull []bool, lengths []uint64, truncated []bool, done bool, err error) {
	rc := C.mysql_stmt_fetch(r.stmt)
	switch rc {
	case C.MYSQL_NO_DATA:
		return nil, nil, nil, true, nil
	case 0, C.MYSQL_DATA_TRUNCATED:
		n := r.numFields
		isNull = make([]bool, n)
		lengths = make([]uint64, n)
		truncated = make([]bool, n)
		for i := 0; i < n; i++ {
			isNull[i] = r.isNull[i] != 0
			lengths[i] = uint64(r.length[i])
			truncated[i] = r.err[i] != 0
		}
		return isNull, lengths, truncated, false, nil
	default:
		return nil, nil, nil, false, errors.New(C.GoString(C.mysql_stmt_error(r.stmt)))
	}
}

// FetchColumn refetches column idx in full, for a row Fetch reported as
// truncated: a fresh MYSQL_BIND pointed at buf, offset 0, requesting the
// entire value regardless of the originally bound buffer's size.
func (r *binaryResult) FetchColumn(idx int, buf []byte) error {
	var bind C.MYSQL_BIND
	bind.buffer_type = C.MYSQL_TYPE_STRING
	if len(buf) > 0 {
		bind.buffer = unsafe.Pointer(&buf[0])
	}
	bind.buffer_length = C.ulong(len(buf))
	if C.mysql_stmt_fetch_column(r.stmt, &bind, C.uint(idx), 0) != 0 {
		return errors.New(C.GoString(C.mysql_stmt_error(r.stmt)))
	}
	return nil
}

func (r *binaryResult) Close() {
	if r.meta != nil {
		C.mysql_free_result(r.meta)
		r.meta = nil
	}
	if r.bind != nil {
		C.free(unsafe.Pointer(r.bind))
		r.bind = nil
	}
	C.mysql_stmt_free_result(r.stmt)
}
