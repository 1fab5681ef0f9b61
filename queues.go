package asyncmaria

import "sync"

// opKind tags what a queued operation is, so the Pipeline Engine and
// State Machine know which connector call to drive and which callback
// shape to invoke on completion.
type opKind uint8

const (
	opQuery opKind = iota
	opExecute
	opPrepare
	opPing
	opSelectDB
	opChangeUser
	opResetConnection
	opStmtClose
	opStmtReset
)

// exclusive reports whether this kind of operation requires exclusive use
// of the connection (may not start while send_count > 0).
func (k opKind) exclusive() bool { return k != opQuery }

// String names k for the "state" label on the asyncmaria_operations_total
// counter.
func (k opKind) String() string {
	switch k {
	case opQuery:
		return "query"
	case opExecute:
		return "execute"
	case opPrepare:
		return "prepare"
	case opPing:
		return "ping"
	case opSelectDB:
		return "select_db"
	case opChangeUser:
		return "change_user"
	case opResetConnection:
		return "reset_connection"
	case opStmtClose:
		return "stmt_close"
	case opStmtReset:
		return "stmt_reset"
	default:
		return "unknown"
	}
}

// opCallback is a union of the callback shapes the external interface
// exposes; exactly one field is populated, selected by the owning node's
// kind.
type opCallback struct {
	query func(*QueryResult, error)
	prep  func(StmtHandle, error)
	plain func(error)
}

func (cb opCallback) deliverQuery(r *QueryResult, err error) {
	if cb.query != nil {
		cb.query(r, err)
	}
}

func (cb opCallback) deliverPrepare(h StmtHandle, err error) {
	if cb.prep != nil {
		cb.prep(h, err)
	}
}

func (cb opCallback) deliverPlain(err error) {
	if cb.plain != nil {
		cb.plain(err)
	}
}

// opNode is a Pending Send while it sits in the send queue, and becomes a
// Pending Callback in place once the Pipeline Engine transfers it to the
// cb queue on successful wire-submission — moving the whole node avoids
// a second allocation and the reference-count churn the spec calls out.
type opNode struct {
	kind opKind

	sql    []byte     // opQuery, opPrepare
	stmt   StmtHandle // opExecute, opStmtClose, opStmtReset
	params []Param    // opExecute
	user   string     // opChangeUser
	pass   string     // opChangeUser
	db     string     // opChangeUser, opSelectDB

	cb opCallback

	next *opNode
}

var opNodePool = sync.Pool{New: func() any { return new(opNode) }}

func getOpNode() *opNode { return opNodePool.Get().(*opNode) }

func putOpNode(n *opNode) {
	*n = opNode{}
	opNodePool.Put(n)
}

// opQueue is a singly linked FIFO of opNode, giving O(1) push/pop without
// shifting. It mirrors the shape of eventloop's ChunkedIngress at a
// smaller scale appropriate to a 64-deep pipeline window rather than a
// high-throughput task ingress.
type opQueue struct {
	head, tail *opNode
	size       int
}

func (q *opQueue) push(n *opNode) {
	n.next = nil
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.size++
}

func (q *opQueue) front() *opNode { return q.head }

// pop removes and returns the head node. Callers that transfer the node
// elsewhere (send queue -> cb queue) must not putOpNode it; callers done
// with it entirely should.
func (q *opQueue) pop() *opNode {
	n := q.head
	if n == nil {
		return nil
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	n.next = nil
	return n
}

func (q *opQueue) len() int { return q.size }

// drain pops every node, invoking fn on each, then releases it to the
// freelist. Used by cancellation paths that must resolve every pending
// callback with the same error.
func (q *opQueue) drain(fn func(*opNode)) {
	for {
		n := q.pop()
		if n == nil {
			return
		}
		fn(n)
		putOpNode(n)
	}
}
