package asyncmaria

import (
	"testing"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherAdapterBindRegistersFD(t *testing.T) {
	loop := newFakeLoop()
	w := newWatcherAdapter(loop)
	var gotRead, gotWrite bool
	require.NoError(t, w.bind(42, func(read, write bool) { gotRead, gotWrite = read, write }))
	assert.Equal(t, 1, loop.registerCalls)

	cb := loop.registered[42]
	require.NotNil(t, cb)
	cb(eventloop.EventRead)
	assert.True(t, gotRead)
	assert.False(t, gotWrite)
}

func TestWatcherAdapterBindTwiceReplacesRegistration(t *testing.T) {
	loop := newFakeLoop()
	w := newWatcherAdapter(loop)
	require.NoError(t, w.bind(1, func(bool, bool) {}))
	require.NoError(t, w.bind(2, func(bool, bool) {}))
	assert.Equal(t, []int{1}, loop.unregisterLog, "rebinding must unregister the old fd first")
	assert.Equal(t, 2, loop.registerCalls)
	_, stillThere := loop.registered[1]
	assert.False(t, stillThere)
}

func TestWatcherAdapterUpdateOnlyTouchesLoopOnChange(t *testing.T) {
	loop := newFakeLoop()
	w := newWatcherAdapter(loop)
	require.NoError(t, w.bind(1, func(bool, bool) {}))

	require.NoError(t, w.update(WaitRead, 0, func() {}))
	assert.Len(t, loop.modifyLog, 1)
	assert.Equal(t, eventloop.EventRead, loop.modifyLog[0])

	// Requesting the same set again must not touch the loop.
	require.NoError(t, w.update(WaitRead, 0, func() {}))
	assert.Len(t, loop.modifyLog, 1)

	require.NoError(t, w.update(WaitRead|WaitWrite, 0, func() {}))
	assert.Len(t, loop.modifyLog, 2)
	assert.Equal(t, eventloop.EventRead|eventloop.EventWrite, loop.modifyLog[1])
}

func TestWatcherAdapterUpdateArmsTimerOnlyWhenRequested(t *testing.T) {
	loop := newFakeLoop()
	w := newWatcherAdapter(loop)
	require.NoError(t, w.bind(1, func(bool, bool) {}))

	require.NoError(t, w.update(WaitRead, 500, func() {}))
	assert.Equal(t, 0, loop.timerCount)

	fired := false
	require.NoError(t, w.update(WaitRead|WaitTimeout, 500, func() { fired = true }))
	require.Equal(t, 1, loop.timerCount)
	loop.lastTimerFn()
	assert.True(t, fired)
}

// TestWatcherAdapterStaleTimerDoesNotFire covers the generation-guard
// invariant: a timer scheduled for an operation that has since moved on
// (a new update call, or clear) must not invoke its stale onTimeout.
func TestWatcherAdapterStaleTimerDoesNotFire(t *testing.T) {
	loop := newFakeLoop()
	w := newWatcherAdapter(loop)
	require.NoError(t, w.bind(1, func(bool, bool) {}))

	staleFired := false
	require.NoError(t, w.update(WaitRead|WaitTimeout, 500, func() { staleFired = true }))
	staleFn := loop.lastTimerFn

	// A later update (or clear) moves the generation forward, orphaning
	// the previously captured callback.
	freshFired := false
	require.NoError(t, w.update(WaitRead|WaitTimeout, 500, func() { freshFired = true }))

	staleFn()
	assert.False(t, staleFired)

	loop.lastTimerFn()
	assert.True(t, freshFired)
}

func TestWatcherAdapterClearDropsRegistrationsIdempotently(t *testing.T) {
	loop := newFakeLoop()
	w := newWatcherAdapter(loop)
	require.NoError(t, w.bind(1, func(bool, bool) {}))
	require.NoError(t, w.update(WaitRead|WaitTimeout, 100, func() { t.Fatal("must not fire after clear") }))
	timerFn := loop.lastTimerFn

	w.clear()
	assert.Equal(t, eventloop.IOEvents(0), loop.modifyLog[len(loop.modifyLog)-1])
	timerFn() // the generation bumped by clear must suppress this

	// clear is safe to call again with nothing armed.
	w.clear()
}

func TestWatcherAdapterUnbindRemovesFD(t *testing.T) {
	loop := newFakeLoop()
	w := newWatcherAdapter(loop)
	require.NoError(t, w.bind(7, func(bool, bool) {}))
	w.unbind()
	assert.Equal(t, []int{7}, loop.unregisterLog)

	// unbind with nothing bound must not panic or re-register.
	w.unbind()
	assert.Equal(t, []int{7}, loop.unregisterLog)
}
