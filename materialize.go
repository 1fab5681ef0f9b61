package asyncmaria

// This file implements §4.2, the Row Materialiser: turning a connector's
// TextResult or BinaryResult into the plain [][]byte Row shape the
// external interface exposes, fully buffered before delivery so a
// callback never blocks on further I/O.

// materializeText drains a TextResult row by row. NULL cells become a
// nil entry; the connector already owns the buffering (mysql_store_result
// semantics), so this is a straight copy into Row values.
func materializeText(res TextResult) ([]Row, error) {
	defer res.Close()
	var rows []Row
	for {
		cells, ok, err := res.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row := make(Row, len(cells))
		for i, c := range cells {
			if c.Null {
				row[i] = nil
				continue
			}
			row[i] = append([]byte(nil), c.Bytes...)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// minColumnBuffer is the smallest buffer the materialiser allocates per
// bound column, even when the server advertises a smaller MaxLength, so
// that narrow fixed-width columns don't cause needless truncation round
// trips for values near their declared bound.
const minColumnBuffer = 256

// materializeBinary drains a BinaryResult by binding one buffer per
// column sized to the server's advertised MaxLength (or minColumnBuffer,
// whichever is larger), fetching row by row, and refetching any column
// Fetch reports as truncated.
func materializeBinary(res BinaryResult) ([]Row, error) {
	defer res.Close()
	n := res.NumFields()
	buffers := make([][]byte, n)
	for i := 0; i < n; i++ {
		size := res.MaxLength(i)
		if size < minColumnBuffer {
			size = minColumnBuffer
		}
		buffers[i] = make([]byte, size)
	}
	if err := res.Bind(buffers); err != nil {
		return nil, err
	}

	var rows []Row
	for {
		isNull, lengths, truncated, done, err := res.Fetch()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		row := make(Row, n)
		for i := 0; i < n; i++ {
			if isNull[i] {
				row[i] = nil
				continue
			}
			if truncated[i] {
				full := make([]byte, lengths[i])
				if err := res.FetchColumn(i, full); err != nil {
					return nil, err
				}
				row[i] = full
				continue
			}
			row[i] = append([]byte(nil), buffers[i][:lengths[i]]...)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
