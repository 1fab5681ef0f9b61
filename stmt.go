package asyncmaria

// StmtHandle is an opaque token returned by Prepare. It is an index into
// the client's statement arena (Design Notes' pointer-free alternative),
// never a pointer: user code may store, compare, and pass it around
// freely, but it is contractually meaningless after CloseStmt's callback
// fires.
type StmtHandle uint32

// invalidStmtHandle is never issued by Prepare; it is the zero value
// returned alongside an error.
const invalidStmtHandle StmtHandle = 0

// stmtSlot backs one live StmtHandle.
type stmtSlot struct {
	conn Stmt
	// generation guards against a stale handle from a since-reused slot
	// being accepted after CloseStmt frees it.
	generation uint32
	closed     bool
}

// stmtArena owns the mapping from StmtHandle to connector Stmt. Handles
// are (index, generation) packed into a uint32: the low 24 bits are the
// slot index, the high 8 bits are the generation, bounding the arena to
// 16M concurrently-tracked slots (in practice bounded far lower by
// MAX_PIPELINE_DEPTH and the fact that only one prepare-scope operation
// may be in flight at a time).
type stmtArena struct {
	slots []stmtSlot
	free  []uint32 // indices available for reuse
}

const (
	stmtIndexBits = 24
	stmtIndexMask = 1<<stmtIndexBits - 1
)

func packStmtHandle(index int, generation uint32) StmtHandle {
	return StmtHandle(uint32(index)&stmtIndexMask | generation<<stmtIndexBits)
}

func unpackStmtHandle(h StmtHandle) (index int, generation uint32) {
	return int(h) & stmtIndexMask, uint32(h) >> stmtIndexBits
}

// register allocates a slot for conn and returns its handle. Slot 0 is
// reserved and never issued: without it, the arena's first-ever handle
// would be packStmtHandle(0, 0), indistinguishable from
// invalidStmtHandle. The teacher's ID allocator carries the same
// precedent (registry.go's nextID starts at 1 "so 0 is null marker");
// here that means seeding a permanently-closed dummy slot at index 0
// before the first real allocation.
func (a *stmtArena) register(conn Stmt) StmtHandle {
	if len(a.slots) == 0 {
		a.slots = append(a.slots, stmtSlot{closed: true})
	}
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		slot := &a.slots[idx]
		slot.conn = conn
		slot.closed = false
		return packStmtHandle(int(idx), slot.generation)
	}
	idx := len(a.slots)
	a.slots = append(a.slots, stmtSlot{conn: conn})
	return packStmtHandle(idx, 0)
}

// lookup resolves a handle to its live Stmt, or ok == false if the
// handle is stale, out of range, or already closed.
func (a *stmtArena) lookup(h StmtHandle) (Stmt, bool) {
	idx, gen := unpackStmtHandle(h)
	if idx < 0 || idx >= len(a.slots) {
		return nil, false
	}
	slot := &a.slots[idx]
	if slot.closed || slot.generation != gen || slot.conn == nil {
		return nil, false
	}
	return slot.conn, true
}

// release marks the handle's slot closed and returns it to the freelist,
// bumping its generation so any retained copy of the old handle can
// never resolve again.
func (a *stmtArena) release(h StmtHandle) {
	idx, gen := unpackStmtHandle(h)
	if idx < 0 || idx >= len(a.slots) {
		return
	}
	slot := &a.slots[idx]
	if slot.closed || slot.generation != gen {
		return
	}
	slot.closed = true
	slot.conn = nil
	slot.generation++
	a.free = append(a.free, uint32(idx))
}
