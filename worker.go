package parklot

import (
	"runtime/debug"
	"sync/atomic"
)

const (
	// globalPollInterval is the poll period, in ticks, at which a worker
	// samples the pool-global queue ahead of its local queues, preventing
	// global-queue starvation while local work is plentiful.
	globalPollInterval = 61
)

// ScheduleHint selects which queue tier receives a scheduled task.
type ScheduleHint uint8

const (
	// HintFifo appends to the worker's bounded ring, spilling into the
	// overflow queue when full. This is the default for fan-out work.
	HintFifo ScheduleHint = iota
	// HintLifo places the task in the worker's single LIFO slot, which is
	// polled before the ring; a previous occupant is demoted to the ring.
	// Use for cache-hot continuations.
	HintLifo
	// HintNext places the task in the worker's private next slot, polled
	// first and invisible to stealers; a previous occupant is demoted to
	// the ring.
	HintNext
	// HintYield requeues the task behind the worker's local FIFO and
	// promotes the current FIFO head into the next slot, so other local
	// work runs first.
	HintYield
)

// Worker is a single pool executor. Each worker owns four tiers of local
// storage polled in priority order: the next slot, the LIFO slot, the
// bounded FIFO ring, and the unbounded overflow queue. Workers with no
// local, overflow, or global work steal from other workers.
//
// A Worker must only be used from the task currently running on it.
type Worker struct {
	pool *Pool

	// activeNext links the pool's append-only registry of live workers,
	// traversed concurrently by stealers. The first registered worker
	// (activeNext == nil) is the root for shutdown quiescence.
	activeNext atomic.Pointer[Worker]

	runQueueNext     *Task                // schedule(HintNext) scratch; owner-private
	runQueueLifo     atomic.Pointer[Task] // schedule(HintLifo) slot; stealable
	runQueue         boundedQueue
	runQueueOverflow unboundedQueue

	// target is the persistent steal cursor into the active-worker list.
	target *Worker

	tick   uint32
	waking bool
}

func newWorker(p *Pool) *Worker {
	w := &Worker{pool: p}
	w.runQueueOverflow.init()
	return w
}

// register publishes the worker on the pool's active list. Nodes are never
// removed during normal operation, so stealers may traverse lock-free.
func (w *Worker) register() {
	for {
		head := w.pool.active.Load()
		w.activeNext.Store(head)
		if w.pool.active.CompareAndSwap(head, w) {
			return
		}
	}
}

// isRoot reports whether this worker was the first registered.
func (w *Worker) isRoot() bool {
	return w.activeNext.Load() == nil
}

// run is the worker main loop: poll, execute, suspend when idle, exit on
// shutdown.
func (w *Worker) run() {
	p := w.pool
	w.register()
	p.logger.Debug().
		Bool("waking", w.waking).
		Log("parklot: worker started")
	for {
		if t := w.poll(); t != nil && p.loadSync().state != syncShutdown {
			if w.waking {
				// Hand the waking role to a successor before running;
				// keeps exactly one worker responsible for promotion.
				w.waking = false
				p.tryResume(true)
			}
			w.runTask(t)
			continue
		}
		// A task polled after shutdown is discarded: no task starts
		// executing once shutdown is observed.
		waking, ok := p.trySuspend(w)
		if !ok {
			p.logger.Debug().Log("parklot: worker exiting")
			return
		}
		w.waking = waking
	}
}

func (w *Worker) runTask(t *Task) {
	m := w.pool.metrics
	var start uint64
	if m != nil {
		start = nanotime()
	}
	if w.safeRun(t) && m != nil {
		m.observeTask(nanotime() - start)
	}
}

// safeRun executes the task, containing panics so a faulty task cannot take
// down the worker. Returns false if the task panicked.
func (w *Worker) safeRun(t *Task) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			w.pool.logger.Err().
				Any("panic", r).
				Str("stack", string(debug.Stack())).
				Log("parklot: task panicked")
		}
	}()
	t.runnable.Run(w)
	return true
}

// poll fetches the next task in priority order: next slot, LIFO slot, local
// FIFO, local overflow, pool global, stealing, global again. Every
// globalPollInterval polls, the global and overflow queues are sampled
// first.
func (w *Worker) poll() *Task {
	w.tick++
	if w.tick%globalPollInterval == 0 {
		if t := w.pollGlobal(); t != nil {
			return t
		}
		if t := w.pollOverflow(); t != nil {
			return t
		}
	}
	if t := w.runQueueNext; t != nil {
		w.runQueueNext = nil
		return t
	}
	if t := w.runQueueLifo.Swap(nil); t != nil {
		return t
	}
	if t := w.runQueue.pop(); t != nil {
		return t
	}
	if t := w.pollOverflow(); t != nil {
		return t
	}
	if t := w.pollGlobal(); t != nil {
		return t
	}
	if t := w.steal(); t != nil {
		return t
	}
	return w.pollGlobal()
}

// pollGlobal drains a run of tasks from the pool-global queue into the local
// ring, returning the first.
func (w *Worker) pollGlobal() *Task {
	return w.runQueue.stealUnbounded(&w.pool.runQueue)
}

// pollOverflow drains the worker's own overflow queue back into the ring.
func (w *Worker) pollOverflow() *Task {
	return w.runQueue.stealUnbounded(&w.runQueueOverflow)
}

// steal sweeps the active-worker list from the persistent cursor, trying
// each victim's bounded ring, then overflow queue, then LIFO slot. The
// cursor survives across polls so successive sweeps cover different victims;
// when it exhausts the list it resets to the head.
func (w *Worker) steal() *Task {
	v := w.target
	if v == nil {
		v = w.pool.active.Load()
	}
	for ; v != nil; v = v.activeNext.Load() {
		w.target = v.activeNext.Load()
		if v == w {
			continue
		}
		if t := w.runQueue.stealBounded(&v.runQueue); t != nil {
			w.noteSteal()
			return t
		}
		if t := w.runQueue.stealUnbounded(&v.runQueueOverflow); t != nil {
			w.noteSteal()
			return t
		}
		if t := v.runQueueLifo.Swap(nil); t != nil {
			w.noteSteal()
			return t
		}
	}
	w.target = nil
	return nil
}

func (w *Worker) noteSteal() {
	if m := w.pool.metrics; m != nil {
		m.tasksStolen.Add(1)
	}
}

// Schedule queues t onto this worker per hint, then nudges the pool so at
// least one worker is awake to consume it. Must be called from the task
// currently running on w.
func (w *Worker) Schedule(hint ScheduleHint, t *Task) {
	if t == nil {
		panic("parklot: nil task")
	}
	switch hint {
	case HintNext:
		if old := w.runQueueNext; old != nil {
			w.pushFifo(BatchFrom(old))
		}
		w.runQueueNext = t
	case HintLifo:
		if old := w.runQueueLifo.Swap(t); old != nil {
			w.pushFifo(BatchFrom(old))
		}
	case HintYield:
		w.pushFifo(BatchFrom(t))
		if w.runQueueNext == nil {
			w.runQueueNext = w.runQueue.pop()
		}
	default:
		w.pushFifo(BatchFrom(t))
	}
	w.pool.tryResume(false)
}

// ScheduleBatch appends the batch to this worker's FIFO tiers and nudges the
// pool. Must be called from the task currently running on w.
func (w *Worker) ScheduleBatch(b Batch) {
	if b.Empty() {
		return
	}
	w.pushFifo(b)
	w.pool.tryResume(false)
}

// pushFifo appends to the bounded ring, forwarding any overflow migration to
// the unbounded overflow queue.
func (w *Worker) pushFifo(b Batch) {
	over := w.runQueue.push(&b)
	if over == nil {
		return
	}
	if m := w.pool.metrics; m != nil {
		m.tasksOverflowed.Add(uint64(over.Len()))
	}
	w.pool.logger.Trace().
		Uint64("migrated", uint64(over.Len())).
		Log("parklot: bounded queue overflow")
	w.runQueueOverflow.push(*over)
}
