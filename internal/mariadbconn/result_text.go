//go:build cgo

package mariadbconn

/*
#include <mysql.h>
*/
import "C"

import (
	"unsafe"

	"github.com/joeycumines/go-asyncmaria"
)

// textResult adapts a buffered MYSQL_RES (the product of
// mysql_store_result_start/cont) to asyncmaria.TextResult. Fetching a
// row from an already-buffered result never blocks, so Next needs no
// wait-set.
type textResult struct {
	res       *C.MYSQL_RES
	numFields int
}

var _ asyncmaria.TextResult = (*textResult)(nil)

func (r *textResult) NumFields() int { return r.numFields }

func (r *textResult) Next() (row []asyncmaria.Cell, ok bool, err error) {
	cRow := C.mysql_fetch_row(r.res)
	if cRow == nil {
		return nil, false, nil
	}
	lengths := C.mysql_fetch_lengths(r.res)
	n := r.numFields
	cells := make([]asyncmaria.Cell, n)
	// cRow and lengths are C arrays of length n; index them via pointer
	// arithmetic since cgo does not expose them as Go slices directly.
	rowPtr := (*[1 << 28]*C.char)(unsafe.Pointer(cRow))[:n:n]
	lenPtr := (*[1 << 28]C.ulong)(unsafe.Pointer(lengths))[:n:n]
	for i := 0; i < n; i++ {
		if rowPtr[i] == nil {
			cells[i] = asyncmaria.Cell{Null: true}
			continue
		}
		cells[i] = asyncmaria.Cell{Bytes: C.GoBytes(unsafe.Pointer(rowPtr[i]), C.int(lenPtr[i]))}
	}
	return cells, true, nil
}

func (r *textResult) Close() {
	C.mysql_free_result(r.res)
	r.res = nil
}
