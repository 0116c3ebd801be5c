package parklot

import (
	"sync/atomic"
)

// unboundedQueue is a Vyukov-style intrusive MPSC linked queue with an
// embedded stub node. Producers push whole batches with two atomic
// operations; at most one consumer at a time holds the consumer token and
// walks the list.
//
// Used for the pool's global queue and each worker's overflow queue.
type unboundedQueue struct {
	stub Task
	// tail is the producer-side pointer to the most recently pushed node.
	tail atomic.Pointer[Task]
	// consuming is the single-consumer token; head is only valid while it
	// is held.
	consuming atomic.Bool
	// head is the consumer cursor. Guarded by consuming.
	head *Task
}

func (q *unboundedQueue) init() {
	q.tail.Store(&q.stub)
	q.head = &q.stub
}

// empty reports whether the queue is observably empty. A concurrent push may
// make the answer stale immediately.
func (q *unboundedQueue) empty() bool {
	return q.tail.Load() == &q.stub
}

// push appends the batch. The release store into the predecessor's next
// pointer publishes every task in the batch; a consumer that observes the
// link observes the tasks.
func (q *unboundedQueue) push(b Batch) {
	if b.Empty() {
		return
	}
	b.tail.next.Store(nil)
	prev := q.tail.Swap(b.tail)
	prev.next.Store(b.head)
}

// tryAcquireConsumer claims the consumer token. Fails when another consumer
// holds it or the queue is observably empty.
func (q *unboundedQueue) tryAcquireConsumer() bool {
	if q.empty() {
		return false
	}
	return q.consuming.CompareAndSwap(false, true)
}

// releaseConsumer returns the token.
func (q *unboundedQueue) releaseConsumer() {
	q.consuming.Store(false)
}

// pop removes the oldest task. Requires the consumer token. Returns nil when
// drained, or when a producer has swapped tail but not yet published its
// next link (the task will be visible to a later pop).
func (q *unboundedQueue) pop() *Task {
	head := q.head
	if head == &q.stub {
		next := head.next.Load()
		if next == nil {
			return nil
		}
		q.head = next
		head = next
	}

	if next := head.next.Load(); next != nil {
		q.head = next
		head.next.Store(nil)
		return head
	}

	// head is the last visible node. If it is also the tail, re-push the
	// stub to detach it; otherwise a producer is mid-push and the link
	// will appear shortly.
	if head != q.tail.Load() {
		return nil
	}
	q.stub.next.Store(nil)
	prev := q.tail.Swap(&q.stub)
	prev.next.Store(&q.stub)

	if next := head.next.Load(); next != nil {
		q.head = next
		head.next.Store(nil)
		return head
	}
	return nil
}
