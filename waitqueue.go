package parklot

import (
	"sync"
	"unsafe"
)

const (
	// lotBucketCount is the number of shards in the global parking lot.
	// Must be a power of two; the hash below extracts log2(lotBucketCount)
	// high bits.
	lotBucketCount = 256

	// fibHashMul spreads addresses across buckets. This is the 64-bit
	// golden-ratio multiplier; nearby addresses land in distant buckets.
	fibHashMul = 0x9E3779B97F4A7C15

	// fairTimeoutRangeNanos bounds the interval between forced-fair
	// hand-offs on a contended sub-queue. At most 1ms elapses between
	// BeFair observations under continuous unparking.
	fairTimeoutRangeNanos = 1_000_000
)

// waiter is an intrusive queue node representing one parked goroutine. Its
// storage lives for the duration of a single ParkConditionally call; an
// unparker never touches a waiter after invoking its wake callback.
//
// The tail, prng, and timesOut fields are only meaningful on the head of a
// sub-queue and migrate to the successor when the head is dequeued, so
// fairness state follows the sub-queue rather than any individual waiter.
type waiter struct {
	event    event
	wake     func() // invoked exactly once by an unparker, outside the bucket lock
	token    uintptr
	address  uintptr
	rootPrev *waiter // links in the bucket's list of sub-queue heads
	rootNext *waiter
	prev     *waiter // links in the per-address FIFO
	next     *waiter
	tail     *waiter // head only: last node of the sub-queue; nil = dequeued
	prng     uint16  // head only: xorshift state for the fairness roll
	timesOut uint64  // head only: deadline forcing the next fair hand-off
}

// nextPRNG advances the head's 16-bit xorshift state.
// Triple (7, 9, 8) is a full-period generator over non-zero states; seeds
// are forced odd so the state never becomes zero.
func (w *waiter) nextPRNG() uint16 {
	x := w.prng
	x ^= x << 7
	x ^= x >> 9
	x ^= x << 8
	w.prng = x
	return x
}

// waitQueue is the per-bucket set of address-indexed FIFO sub-queues.
// All methods require the bucket lock.
type waitQueue struct {
	// head is the first sub-queue head; further heads hang off rootNext.
	head *waiter
	// seed retains the fairness entropy of the last root sub-queue after
	// the bucket empties, so re-populated queues continue a coherent
	// sequence. Zero means never seeded.
	seed uint16
}

// bucket is one shard of the parking lot: a short-term lock plus a queue
// root. The trailing pad keeps adjacent buckets in the fixed table on
// distinct cache lines, so contention on one address never degrades the
// locks of its table neighbours. A full 128-byte pad covers the widest
// common line (ARM64) regardless of the lock and root sizes before it.
type bucket struct {
	mu sync.Mutex
	q  waitQueue
	_  [128]byte //nolint:unused
}

// lot is the process-global bucket table. Fixed size; an address hashes to a
// bucket by multiplicative spreading, so collisions are bounded and the
// per-bucket linear scan stays short.
//
// TODO: replace the per-bucket linear scan with a small intrusive balanced
// tree keyed by address, for workloads with heavy bucket collision.
var lot [lotBucketCount]bucket

func lotBucketFor(address uintptr) *bucket {
	const shift = 64 - 8 // log2(lotBucketCount) high bits
	return &lot[(uint64(address)*fibHashMul)>>shift]
}

// find returns the sub-queue head for address, or nil.
func (q *waitQueue) find(address uintptr) *waiter {
	for h := q.head; h != nil; h = h.rootNext {
		if h.address == address {
			return h
		}
	}
	return nil
}

// insert appends w to the sub-queue for address, creating the sub-queue if
// none exists.
func (q *waitQueue) insert(address uintptr, w *waiter) {
	w.address = address
	w.next = nil
	w.prev = nil
	w.rootPrev = nil
	w.rootNext = nil
	w.tail = w

	var last *waiter
	for h := q.head; h != nil; h = h.rootNext {
		if h.address == address {
			t := h.tail
			t.next = w
			w.prev = t
			h.tail = w
			return
		}
		last = h
	}

	// w becomes a new sub-queue head.
	w.timesOut = 0
	if last == nil {
		q.setRoot(w)
		return
	}
	w.prng = uint16(address) | 1
	last.rootNext = w
	w.rootPrev = last
}

// setRoot installs w as the first sub-queue head, or clears the root when w
// is nil, preserving fairness state across the transition: a current root's
// prng and deadline are adopted; a retained seed is adopted with the
// deadline reset; an empty, never-seeded queue seeds from its own address
// (low 16 bits, forced odd) so seeds differ per bucket-queue.
func (q *waitQueue) setRoot(w *waiter) {
	prng := q.seed
	var timesOut uint64
	if h := q.head; h != nil {
		prng = h.prng
		timesOut = h.timesOut
	} else if prng == 0 {
		prng = uint16(uintptr(unsafe.Pointer(q))) | 1
	}
	if w == nil {
		q.seed = prng
		q.head = nil
		return
	}
	w.prng = prng
	w.timesOut = timesOut
	q.head = w
}

// remove splices w out of its sub-queue, promoting its successor (and
// migrating the head-only fairness state) when w was the head. Returns
// false if w was already dequeued.
func (q *waitQueue) remove(w *waiter) bool {
	if w.tail == nil {
		return false
	}
	h := q.find(w.address)
	switch {
	case w != h:
		// Mid-queue or tail node.
		w.prev.next = w.next
		if w.next != nil {
			w.next.prev = w.prev
		} else {
			h.tail = w.prev
		}
	case w.next != nil:
		// Head with a successor: promote it.
		n := w.next
		n.prev = nil
		n.prng = h.prng
		n.timesOut = h.timesOut
		n.tail = h.tail
		n.rootPrev = h.rootPrev
		n.rootNext = h.rootNext
		if n.rootPrev != nil {
			n.rootPrev.rootNext = n
		}
		if n.rootNext != nil {
			n.rootNext.rootPrev = n
		}
		if q.head == h {
			q.head = n
		}
	default:
		// Sub-queue empties; drop its root-list slot.
		if h.rootPrev != nil {
			h.rootPrev.rootNext = h.rootNext
		}
		if h.rootNext != nil {
			h.rootNext.rootPrev = h.rootPrev
		}
		if q.head == h {
			if h.rootNext != nil {
				q.head = h.rootNext
			} else {
				q.setRoot(nil) // retain the fairness seed
			}
		}
	}
	w.tail = nil
	w.next = nil
	w.prev = nil
	w.rootNext = nil
	w.rootPrev = nil
	return true
}

// shouldBeFair reports whether the next dequeue from h's sub-queue should be
// a direct hand-off. Once the rolling deadline passes, the PRNG is advanced
// twice to draw the next interval (uniform in [0, 1ms)).
func (q *waitQueue) shouldBeFair(h *waiter, now uint64) bool {
	if now < h.timesOut {
		return false
	}
	r := uint32(h.nextPRNG())<<16 | uint32(h.nextPRNG())
	h.timesOut = now + uint64(r%fairTimeoutRangeNanos)
	return true
}
