package parklot

// ParkOutcome classifies the result of a ParkConditionally call.
type ParkOutcome uint8

const (
	// ParkInvalidated means OnValidate aborted the park; the caller never
	// blocked and holds no token.
	ParkInvalidated ParkOutcome = iota
	// ParkTimedOut means the deadline elapsed before any unpark dequeued
	// the waiter.
	ParkTimedOut
	// ParkUnparked means an unparker dequeued and woke the waiter; Token
	// carries the unparker's value (see ParkResult).
	ParkUnparked
)

// String returns a human-readable representation of the outcome.
func (o ParkOutcome) String() string {
	switch o {
	case ParkInvalidated:
		return "Invalidated"
	case ParkTimedOut:
		return "TimedOut"
	case ParkUnparked:
		return "Unparked"
	default:
		return "Unknown"
	}
}

// ParkResult is the outcome of a ParkConditionally call. Token is only
// meaningful when Outcome is ParkUnparked. After UnparkOne it is whatever the
// onUnpark callback returned (which may differ from the park token), or 0
// when no callback was given; UnparkAll sets no token, so the waiter gets
// back its own park token.
type ParkResult struct {
	Token   uintptr
	Outcome ParkOutcome
}

// ParkContext supplies the caller hooks for ParkConditionally. All hooks are
// optional; nil hooks behave as no-ops (OnValidate defaults to token 0,
// proceed).
type ParkContext struct {
	// OnValidate runs under the bucket lock, before the waiter is
	// published. Returning ok=false aborts the park without blocking.
	// The returned token is stored on the waiter and later passed to
	// OnTimeout.
	OnValidate func() (token uintptr, ok bool)

	// OnBeforeWait runs after the waiter is inserted, immediately before
	// the bucket lock is released for blocking.
	OnBeforeWait func()

	// OnTimeout runs under the bucket lock after a timed-out waiter is
	// removed. hasMore reports whether the sub-queue still holds waiters.
	OnTimeout func(token uintptr, hasMore bool)
}

// UnparkResult describes the effect of an UnparkOne call.
type UnparkResult struct {
	// Unparked reports whether a waiter was dequeued.
	Unparked bool
	// BeFair advises the caller to hand its slot directly to the woken
	// waiter rather than permitting barging. Ordering is FIFO regardless.
	BeFair bool
	// HasMore reports whether the sub-queue still holds waiters after the
	// dequeue.
	HasMore bool
}

// ParkConditionally blocks the calling goroutine on address until an unpark
// or the absolute deadline (Nanotime units; zero means wait forever).
//
// The validation hook runs under the same bucket lock that publishes the
// waiter, so an unparker holding that lock can never miss a waiter whose
// validation succeeded. A timeout that races with an unpark is unobservable:
// if an unparker dequeued the waiter first, the call reports ParkUnparked
// with the unparker's token.
func ParkConditionally(address uintptr, deadline uint64, ctx ParkContext) ParkResult {
	b := lotBucketFor(address)
	b.mu.Lock()

	var token uintptr
	if ctx.OnValidate != nil {
		t, ok := ctx.OnValidate()
		if !ok {
			b.mu.Unlock()
			return ParkResult{Outcome: ParkInvalidated}
		}
		token = t
	}

	w := &waiter{token: token}
	w.event.init()
	w.wake = w.event.notify
	b.q.insert(address, w)

	notified := w.event.wait(deadline, func() {
		if ctx.OnBeforeWait != nil {
			ctx.OnBeforeWait()
		}
		b.mu.Unlock()
	})
	if notified {
		return ParkResult{Outcome: ParkUnparked, Token: w.token}
	}

	// Timed out: the waiter may still be queued, or an unparker may have
	// taken it between the deadline and this point.
	b.mu.Lock()
	if b.q.remove(w) {
		if ctx.OnTimeout != nil {
			ctx.OnTimeout(token, b.q.find(address) != nil)
		}
		b.mu.Unlock()
		return ParkResult{Outcome: ParkTimedOut}
	}
	b.mu.Unlock()

	// Lost the race: an unparker already dequeued this waiter, so the wake
	// is imminent and this wait is guaranteed to complete.
	w.event.wait(0, nil)
	return ParkResult{Outcome: ParkUnparked, Token: w.token}
}

// UnparkOne dequeues and wakes the oldest waiter parked on address, if any.
//
// onUnpark, when non-nil, runs under the bucket lock with the dequeue's
// result; its return value becomes the token delivered to the woken waiter.
// This lets the caller transfer or drop ownership atomically with the
// dequeue. The wake itself happens after the lock is released.
func UnparkOne(address uintptr, onUnpark func(UnparkResult) uintptr) UnparkResult {
	b := lotBucketFor(address)
	b.mu.Lock()

	var res UnparkResult
	w := b.q.find(address)
	if w != nil {
		res.Unparked = true
		res.BeFair = b.q.shouldBeFair(w, nanotime())
		res.HasMore = w.next != nil
		b.q.remove(w)
	}
	var token uintptr
	if onUnpark != nil {
		token = onUnpark(res)
	}
	if w != nil {
		w.token = token
	}
	b.mu.Unlock()

	if w != nil {
		w.wake()
	}
	return res
}

// UnparkAll dequeues and wakes every waiter parked on address, returning the
// number woken. The sub-queue is drained under the bucket lock; wakes happen
// after it is released.
func UnparkAll(address uintptr) int {
	b := lotBucketFor(address)
	b.mu.Lock()
	var head, tail *waiter
	for {
		w := b.q.find(address)
		if w == nil {
			break
		}
		b.q.remove(w)
		if tail == nil {
			head = w
		} else {
			tail.next = w
		}
		tail = w
	}
	b.mu.Unlock()

	n := 0
	for w := head; w != nil; {
		// The waiter's frame may be reclaimed the instant wake runs;
		// read the link first.
		next := w.next
		w.next = nil
		w.wake()
		w = next
		n++
	}
	return n
}
