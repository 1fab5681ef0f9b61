package asyncmaria

import (
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
)

// EventLoop is the subset of *eventloop.Loop the Watcher Adapter drives.
// Declared as an interface, Go's "accept interfaces, return structs"
// idiom, so tests can substitute a fake loop instead of running epoll.
type EventLoop interface {
	RegisterFD(fd int, events eventloop.IOEvents, callback func(eventloop.IOEvents)) error
	UnregisterFD(fd int) error
	ModifyFD(fd int, events eventloop.IOEvents) error
	ScheduleTimer(delay time.Duration, fn func()) error
}

// watcherAdapter maps a connector WaitSet onto a single socket fd's
// readable/writable registration plus one timer, per §4.1. It is
// idempotent: update() only touches the event loop when the requested
// set differs from what is currently armed, and Clear unconditionally
// drops every registration regardless of what it believes is armed,
// defending against a stale registration surviving a synchronous
// fast-path completion.
type watcherAdapter struct {
	loop EventLoop
	fd   int

	fdRegistered bool
	armedRead    bool
	armedWrite   bool

	// timerGeneration guards against a timer scheduled for a previous
	// operation firing after the watcher has moved on; ScheduleTimer has
	// no native cancellation, so the fired callback checks its captured
	// generation against the current one before acting.
	timerGeneration uint64
	timerArmed      bool
}

func newWatcherAdapter(loop EventLoop) *watcherAdapter {
	return &watcherAdapter{loop: loop}
}

// bind associates the adapter with fd, (re-)registering it with the
// event loop. Called once per connection establishment and again after
// every Reset, per §4.1.
func (w *watcherAdapter) bind(fd int, onEvents func(read, write bool)) error {
	if w.fdRegistered {
		_ = w.loop.UnregisterFD(w.fd)
		w.fdRegistered = false
	}
	w.fd = fd
	w.armedRead, w.armedWrite = false, false
	if err := w.loop.RegisterFD(fd, 0, func(ev eventloop.IOEvents) {
		onEvents(ev&eventloop.EventRead != 0, ev&eventloop.EventWrite != 0)
	}); err != nil {
		return err
	}
	w.fdRegistered = true
	return nil
}

// update reconciles the adapter's armed registrations with want, and
// arms a fresh timer for timeoutMS milliseconds if WaitTimeout is set.
// onTimeout fires at most once per update call that sets WaitTimeout.
func (w *watcherAdapter) update(want WaitSet, timeoutMS int, onTimeout func()) error {
	wantRead := want.has(WaitRead)
	wantWrite := want.has(WaitWrite)

	if w.fdRegistered && (wantRead != w.armedRead || wantWrite != w.armedWrite) {
		var events eventloop.IOEvents
		if wantRead {
			events |= eventloop.EventRead
		}
		if wantWrite {
			events |= eventloop.EventWrite
		}
		if err := w.loop.ModifyFD(w.fd, events); err != nil {
			return err
		}
		w.armedRead, w.armedWrite = wantRead, wantWrite
	}

	w.timerArmed = false
	if want.has(WaitTimeout) {
		w.timerGeneration++
		gen := w.timerGeneration
		w.timerArmed = true
		d := time.Duration(timeoutMS) * time.Millisecond
		if d < 0 {
			d = 0
		}
		if err := w.loop.ScheduleTimer(d, func() {
			if gen == w.timerGeneration && w.timerArmed {
				onTimeout()
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// clear unconditionally drops every registration: the fd's interest mask
// goes to zero and any armed timer is invalidated. Called on every
// return to Idle per §4.1's critical invariant, regardless of what the
// adapter believes is currently armed.
func (w *watcherAdapter) clear() {
	if w.fdRegistered {
		_ = w.loop.ModifyFD(w.fd, 0)
		w.armedRead, w.armedWrite = false, false
	}
	w.timerGeneration++
	w.timerArmed = false
}

// unbind fully removes the fd registration, used when the connection is
// torn down (Finish, SkipPending, a fatal error, or Reset's close step).
func (w *watcherAdapter) unbind() {
	w.clear()
	if w.fdRegistered {
		_ = w.loop.UnregisterFD(w.fd)
		w.fdRegistered = false
	}
}
