package asyncmaria

// Row is one row of a result set: an ordered sequence of nullable byte
// strings. A nil element means SQL NULL; a non-nil, possibly empty,
// slice is an actual value.
type Row [][]byte

// QueryResult is the success payload of Query and Execute. Exactly one
// of Rows or Affected is meaningful: a SELECT populates Rows (Affected
// left zero), a DML statement populates Affected and InsertID with Rows
// left nil.
type QueryResult struct {
	Rows     []Row
	Affected int64
	InsertID uint64
}
