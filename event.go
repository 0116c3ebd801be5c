package parklot

import (
	"time"
)

// event is the one-shot blocking primitive backing a parked waiter.
//
// The notify side is a channel close, which both broadcasts (a second wait
// after a lost timeout race completes immediately) and establishes the
// happens-before edge that publishes the unparker's token write to the
// parker.
//
// An event is single-use: init once, notify at most once.
type event struct {
	ch chan struct{}
}

func (e *event) init() {
	e.ch = make(chan struct{})
}

// notify releases the waiter. Must be called at most once, and never while
// holding the waiter's bucket lock.
func (e *event) notify() {
	close(e.ch)
}

// wait blocks until notify or until the absolute deadline (Nanotime units;
// zero means no deadline) passes, returning true if notified.
//
// before, when non-nil, is invoked exactly once prior to blocking. The
// parking lot uses it to release the bucket lock after the waiter is
// published, so an unparker can never observe a published-but-unparkable
// waiter.
func (e *event) wait(deadline uint64, before func()) bool {
	if before != nil {
		before()
	}
	if deadline == 0 {
		<-e.ch
		return true
	}
	if now := nanotime(); deadline > now {
		timer := time.NewTimer(time.Duration(deadline - now))
		defer timer.Stop()
		select {
		case <-e.ch:
			return true
		case <-timer.C:
		}
	}
	// Deadline passed; a racing notify still wins.
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}
