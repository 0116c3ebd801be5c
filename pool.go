package parklot

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/logiface"
)

// Idle-queue states. The packed word below is the sole authority on worker
// lifecycle; the five states plus the independent notified flag encode the
// full coordination protocol.
const (
	// syncPending: no wake pending, normal operation.
	syncPending = iota
	// syncNotified: a wake was posted for some non-waking worker to
	// consume before it suspends.
	syncNotified
	// syncWaking: exactly one worker holds the waking role and is
	// responsible for promoting a successor when it finds work.
	syncWaking
	// syncWakerNotified: a wake was posted while a waker was active; the
	// waker consumes it before suspending.
	syncWakerNotified
	// syncShutdown: terminal.
	syncShutdown
)

const (
	syncStateBits = 3
	syncCountBits = 14
	syncCountMask = 1<<syncCountBits - 1

	syncNotifiedShift = syncStateBits
	syncIdleShift     = syncStateBits + 1
	syncSpawnedShift  = syncIdleShift + syncCountBits
)

// poolSync is the unpacked view of the pool's idle-queue word:
// {state:3, notified:1, idle:14, spawned:14}.
type poolSync struct {
	state    uint32
	notified bool
	idle     uint32
	spawned  uint32
}

func packSync(s poolSync) uint32 {
	v := s.state
	if s.notified {
		v |= 1 << syncNotifiedShift
	}
	v |= (s.idle & syncCountMask) << syncIdleShift
	v |= (s.spawned & syncCountMask) << syncSpawnedShift
	return v
}

func unpackSync(v uint32) poolSync {
	return poolSync{
		state:    v & (1<<syncStateBits - 1),
		notified: v&(1<<syncNotifiedShift) != 0,
		idle:     (v >> syncIdleShift) & syncCountMask,
		spawned:  (v >> syncSpawnedShift) & syncCountMask,
	}
}

// Pool is a work-stealing task executor multiplexing tasks onto a bounded
// set of worker goroutines. Construct with New; schedule with Schedule or a
// Worker's Schedule; stop with Shutdown.
//
// The zero value is not usable.
type Pool struct { // betteralign:ignore
	// Prevent copying.
	_ [0]func()

	// sync is the packed idle-queue word. Idle workers park on its
	// address; never split this state across multiple atomics.
	sync atomic.Uint32

	maxWorkers uint32

	// runQueue is the pool-global MPSC queue: overflow target for
	// external schedules and the worker's 61-tick sampling source.
	runQueue unboundedQueue

	// active is the head of the append-only registry of live workers.
	active atomic.Pointer[Worker]

	logger  *logiface.Logger[logiface.Event]
	metrics *metricsCollector

	doneOnce sync.Once
	done     chan struct{}
}

// New constructs an idle pool. No goroutines are started until work is
// scheduled or Run is called.
func New(opts ...Option) (*Pool, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		maxWorkers: cfg.maxWorkers,
		logger:     cfg.logger,
		done:       make(chan struct{}),
	}
	if cfg.metricsEnabled {
		p.metrics = newMetricsCollector()
	}
	p.runQueue.init()
	return p, nil
}

func (p *Pool) loadSync() poolSync {
	return unpackSync(p.sync.Load())
}

// casSync attempts old -> next, returning the freshly observed state and
// whether the swap happened.
func (p *Pool) casSync(old, next poolSync) (poolSync, bool) {
	if p.sync.CompareAndSwap(packSync(old), packSync(next)) {
		return next, true
	}
	return p.loadSync(), false
}

// syncAddr is the parking-lot address shared by idle suspension and the
// shutdown quiescence barrier.
func (p *Pool) syncAddr() uintptr {
	return uintptr(unsafe.Pointer(&p.sync))
}

// MaxWorkers returns the configured worker ceiling.
func (p *Pool) MaxWorkers() int {
	return int(p.maxWorkers)
}

// Schedule queues t on the pool-global queue and ensures at least one worker
// is awake (or newly spawned) to consume it. Safe from any goroutine.
// Returns ErrPoolShutdown after Shutdown.
func (p *Pool) Schedule(t *Task) error {
	if t == nil {
		panic("parklot: nil task")
	}
	return p.ScheduleBatch(BatchFrom(t))
}

// ScheduleBatch queues the whole batch in O(1) and wakes or spawns a worker.
func (p *Pool) ScheduleBatch(b Batch) error {
	if b.Empty() {
		return nil
	}
	if p.loadSync().state == syncShutdown {
		return ErrPoolShutdown
	}
	p.runQueue.push(b)
	if !p.tryResume(false) {
		return ErrPoolShutdown
	}
	return nil
}

// Run hosts the pool's first worker on the calling goroutine, seeding it
// with t (which may be nil if work was already scheduled), and blocks until
// Shutdown completes and every worker has unwound. The caller's goroutine is
// the root of the shutdown quiescence barrier, so the pool outlives every
// worker that references it.
//
// Run must be called at most once, on a pool with no workers yet.
func (p *Pool) Run(t *Task) error {
	for {
		s := p.loadSync()
		if s.state == syncShutdown {
			return ErrPoolShutdown
		}
		if s.spawned != 0 || s.state != syncPending {
			return ErrPoolRunning
		}
		n := s
		n.state = syncWaking
		n.spawned = 1
		if _, swapped := p.casSync(s, n); swapped {
			break
		}
	}
	if t != nil {
		p.runQueue.push(BatchFrom(t))
	}
	w := newWorker(p)
	w.waking = true
	w.run()
	return nil
}

// Shutdown transitions the pool to its terminal state and unblocks every
// parked worker. Running tasks are not pre-empted; no task starts executing
// afterwards. Idempotent.
func (p *Pool) Shutdown() {
	for {
		s := p.loadSync()
		if s.state == syncShutdown {
			return
		}
		n := s
		n.state = syncShutdown
		n.notified = false
		next, swapped := p.casSync(s, n)
		if !swapped {
			continue
		}
		p.logger.Debug().
			Uint64("spawned", uint64(next.spawned)).
			Log("parklot: shutdown requested")
		if next.spawned == 0 {
			// No workers ever ran (or all already unwound).
			p.doneOnce.Do(func() { close(p.done) })
		}
		UnparkAll(p.syncAddr())
		return
	}
}

// Wait blocks until shutdown quiescence completes: every worker observed
// shutdown and unwound.
func (p *Pool) Wait() {
	<-p.done
}

// Metrics returns a snapshot of pool runtime statistics. Returns the zero
// Metrics unless the pool was built with WithMetrics(true).
func (p *Pool) Metrics() Metrics {
	if p.metrics == nil {
		return Metrics{}
	}
	return p.metrics.snapshot()
}

// tryResume drives the idle-queue FSM after work is made available: wake one
// idle worker, spawn a new one, or annotate the state so a worker re-polls
// before suspending. isWaking is set when the caller holds the waking role
// and is promoting a successor.
//
// Returns false only when the pool is shut down.
func (p *Pool) tryResume(isWaking bool) bool {
	s := p.loadSync()
	for {
		if s.state == syncShutdown {
			return false
		}
		canWake := s.idle > 0 || s.spawned < p.maxWorkers

		wakerResume := isWaking && (s.state == syncWaking || s.state == syncWakerNotified)
		if canWake && (wakerResume || (!isWaking && s.state == syncPending)) {
			n := s
			n.state = syncWaking
			doWake := s.idle > 0
			if doWake {
				n.idle--
				n.notified = true
			} else {
				n.spawned++
			}
			var swapped bool
			if s, swapped = p.casSync(s, n); !swapped {
				continue
			}
			if doWake {
				UnparkOne(p.syncAddr(), nil)
			} else {
				w := newWorker(p)
				w.waking = true
				go w.run()
			}
			return true
		}

		if isWaking && !canWake {
			// Every worker is busy and the pool is at capacity; the
			// waking role has nothing to promote. Relinquish it.
			n := s
			n.state = syncPending
			var swapped bool
			if s, swapped = p.casSync(s, n); !swapped {
				continue
			}
			return true
		}

		// Annotate: record that a wake was posted so a worker re-polls
		// before suspending.
		n := s
		switch s.state {
		case syncPending:
			n.state = syncNotified
		case syncWaking:
			n.state = syncWakerNotified
		default:
			// Already annotated; the pending notification covers this
			// resume too.
			return true
		}
		var swapped bool
		if s, swapped = p.casSync(s, n); !swapped {
			continue
		}
		return true
	}
}

// trySuspend is called by a worker whose poll came up empty. It either
// consumes a pending notification (telling the worker to re-poll), parks the
// worker on the idle-queue address, or — on shutdown — deregisters the
// worker and runs the quiescence barrier.
//
// Returns ok=false when the worker must exit; otherwise isWaking reports
// whether the worker holds the waking role for its next poll round.
func (p *Pool) trySuspend(w *Worker) (isWaking, ok bool) {
	isWaking = w.waking
	isIdle := false
	s := p.loadSync()
	for {
		if s.state == syncShutdown {
			n := s
			n.spawned--
			var swapped bool
			if s, swapped = p.casSync(s, n); !swapped {
				continue
			}
			p.quiesce(w, s.spawned == 0)
			return false, false
		}

		var notified bool
		if isIdle {
			// A resumer already uncounted this worker from idle when it
			// posted the flag; consuming it costs no further decrement.
			notified = s.notified
		} else {
			notified = s.state == syncNotified || (s.state == syncWakerNotified && isWaking)
		}
		if notified {
			n := s
			if isIdle {
				n.notified = false
				var swapped bool
				if s, swapped = p.casSync(s, n); !swapped {
					continue
				}
				// The resumer designated the woken worker as the waker.
				return true, true
			}
			switch s.state {
			case syncNotified:
				if isWaking {
					n.state = syncWaking
				} else {
					n.state = syncPending
				}
			case syncWakerNotified:
				n.state = syncWaking
			}
			var swapped bool
			if s, swapped = p.casSync(s, n); !swapped {
				continue
			}
			return isWaking, true
		}

		if !isIdle {
			n := s
			n.idle++
			if isWaking {
				// Going idle relinquishes the waking role; leave a
				// notification behind when nothing could be promoted.
				if s.idle > 0 || s.spawned < p.maxWorkers {
					n.state = syncPending
				} else {
					n.state = syncNotified
				}
			}
			var swapped bool
			if s, swapped = p.casSync(s, n); !swapped {
				continue
			}
			isWaking = false
			isIdle = true
		}

		if m := p.metrics; m != nil {
			m.idleParks.Add(1)
		}
		p.idleWait()
		s = p.loadSync()
	}
}

// idleWait parks the worker on the idle-queue address. Validation runs under
// the bucket lock, so a notification posted before the park is observed
// either by the validation (abort) or by a subsequent UnparkOne (wake);
// never missed.
func (p *Pool) idleWait() {
	ParkConditionally(p.syncAddr(), 0, ParkContext{
		OnValidate: func() (uintptr, bool) {
			s := p.loadSync()
			if s.state == syncShutdown || s.notified {
				return 0, false
			}
			return 0, true
		},
	})
}

// quiesce is the two-phase shutdown barrier. The caller has already
// deregistered itself from spawned; last reports whether that decrement
// reached zero.
//
// The root worker (first registered) waits until spawned reaches zero, then
// releases the non-root workers; non-root workers wait for that release.
// This guarantees the root — and therefore Run's stack frame — unwinds last.
func (p *Pool) quiesce(w *Worker, last bool) {
	defer p.doneOnce.Do(func() { close(p.done) })

	if last {
		// Wake whichever workers (the root included) still wait on the
		// barrier address.
		UnparkAll(p.syncAddr())
	}

	if w.isRoot() {
		for p.loadSync().spawned != 0 {
			ParkConditionally(p.syncAddr(), 0, ParkContext{
				OnValidate: func() (uintptr, bool) {
					if p.loadSync().spawned == 0 {
						return 0, false
					}
					return 0, true
				},
			})
		}
		// Release the non-root workers.
		for {
			s := p.loadSync()
			n := s
			n.notified = true
			if _, swapped := p.casSync(s, n); swapped {
				break
			}
		}
		UnparkAll(p.syncAddr())
		p.logger.Debug().Log("parklot: pool quiesced")
		return
	}

	for !p.loadSync().notified {
		ParkConditionally(p.syncAddr(), 0, ParkContext{
			OnValidate: func() (uintptr, bool) {
				if p.loadSync().notified {
					return 0, false
				}
				return 0, true
			},
		})
	}
}
