package asyncmaria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpQueuePushPopFIFO(t *testing.T) {
	var q opQueue
	a, b, c := getOpNode(), getOpNode(), getOpNode()
	a.kind, b.kind, c.kind = opQuery, opPing, opSelectDB

	q.push(a)
	q.push(b)
	q.push(c)
	assert.Equal(t, 3, q.len())
	assert.Same(t, a, q.front())

	got := q.pop()
	assert.Same(t, a, got)
	assert.Equal(t, 2, q.len())
	assert.Equal(t, opPing, q.pop().kind)
	assert.Equal(t, opSelectDB, q.pop().kind)
	assert.Equal(t, 0, q.len())
	assert.Nil(t, q.pop())
}

func TestOpQueueDrainInvokesAndReleasesEveryNode(t *testing.T) {
	var q opQueue
	var delivered []error
	wantErr := assert.AnError
	for i := 0; i < 5; i++ {
		n := getOpNode()
		n.kind = opQuery
		n.cb = opCallback{query: func(_ *QueryResult, err error) { delivered = append(delivered, err) }}
		q.push(n)
	}

	q.drain(func(n *opNode) { n.cb.deliverQuery(nil, wantErr) })
	require.Len(t, delivered, 5)
	for _, err := range delivered {
		assert.Same(t, wantErr, err)
	}
	assert.Equal(t, 0, q.len())
	assert.Nil(t, q.front())
}

func TestPutOpNodeResetsForReuse(t *testing.T) {
	n := getOpNode()
	n.kind = opExecute
	n.sql = []byte("select 1")
	n.stmt = StmtHandle(7)
	n.cb = opCallback{plain: func(error) {}}
	putOpNode(n)

	assert.Equal(t, opQuery, n.kind) // opQuery is the zero value
	assert.Nil(t, n.sql)
	assert.Equal(t, invalidStmtHandle, n.stmt)
	assert.Nil(t, n.cb.plain)
}

func TestOpCallbackOnlyInvokesItsOwnShape(t *testing.T) {
	var queryCalls, prepCalls, plainCalls int
	cb := opCallback{query: func(*QueryResult, error) { queryCalls++ }}
	cb.deliverQuery(nil, nil)
	cb.deliverPrepare(0, nil)
	cb.deliverPlain(nil)
	assert.Equal(t, 1, queryCalls)
	assert.Equal(t, 0, prepCalls)
	assert.Equal(t, 0, plainCalls)
}

func TestStmtArenaRegisterNeverIssuesTheInvalidHandle(t *testing.T) {
	var arena stmtArena
	h1 := arena.register(&fakeStmt{id: 1})
	assert.NotEqual(t, invalidStmtHandle, h1, "the first handle the arena ever issues must not collide with the zero-value sentinel")

	arena.release(h1)
	h2 := arena.register(&fakeStmt{id: 2})
	assert.NotEqual(t, invalidStmtHandle, h2)

	_, ok := arena.lookup(invalidStmtHandle)
	assert.False(t, ok, "the sentinel handle must never resolve, even against a freshly seeded arena")
}

func TestStmtArenaRegisterLookupRelease(t *testing.T) {
	var arena stmtArena
	s1 := &fakeStmt{id: 1}
	h1 := arena.register(s1)

	got, ok := arena.lookup(h1)
	require.True(t, ok)
	assert.Same(t, s1, got)

	arena.release(h1)
	_, ok = arena.lookup(h1)
	assert.False(t, ok, "a released handle must never resolve again")

	// Releasing an already-released handle is a no-op, not a panic.
	arena.release(h1)

	s2 := &fakeStmt{id: 2}
	h2 := arena.register(s2)
	idx1, _ := unpackStmtHandle(h1)
	idx2, gen2 := unpackStmtHandle(h2)
	assert.Equal(t, idx1, idx2, "the freed slot should be reused")
	assert.NotEqual(t, uint32(0), gen2, "the reused slot's generation must have bumped")

	got2, ok := arena.lookup(h2)
	require.True(t, ok)
	assert.Same(t, s2, got2)

	// The stale handle into the now-reused slot still must not resolve.
	_, ok = arena.lookup(h1)
	assert.False(t, ok)
}

func TestStmtArenaLookupRejectsOutOfRangeHandle(t *testing.T) {
	var arena stmtArena
	_, ok := arena.lookup(StmtHandle(12345))
	assert.False(t, ok)
}
