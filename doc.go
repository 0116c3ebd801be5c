// Package parklot provides an address-keyed parking lot and a work-stealing
// task pool built on top of it.
//
// # Architecture
//
// The package has two tightly coupled halves:
//
//   - The parking lot ([ParkConditionally], [UnparkOne], [UnparkAll]) is a
//     generic blocking primitive: callers associate goroutines with arbitrary
//     machine addresses, and other callers wake one or all waiters at an
//     address. It is the building block for mutexes, condition variables, and
//     one-shot events, and is used internally for idle-worker suspension.
//   - The task pool ([Pool], [Worker]) is a multi-threaded work-stealing
//     executor. Each worker owns a three-tier local run-queue topology (a
//     private next slot, an atomic LIFO slot, and a 256-entry bounded ring
//     spilling into an unbounded overflow queue), and an idle-queue state
//     machine packed into a single atomic word coordinates worker wake,
//     spawn, suspend, and shutdown transitions.
//
// # Parking Lot
//
// Waiters are intrusive nodes sharded across 256 hash buckets, one FIFO
// sub-queue per distinct address. Wakeups are eventually fair: each
// sub-queue carries a 16-bit xorshift PRNG and a rolling deadline, and at
// least once per ~1ms window of continuous contention [UnparkResult.BeFair]
// is reported so callers can suppress barging.
//
// # Thread Safety
//
//   - [Pool.Schedule] and [Pool.Shutdown] are safe to call from any goroutine.
//   - [Worker.Schedule] must only be called from a task running on that worker.
//   - Parking lot functions are safe to call from any goroutine; callbacks in
//     [ParkContext] and the unpark callback run under the bucket lock and must
//     not block.
//
// # Usage
//
//	pool, err := parklot.New(parklot.WithMaxWorkers(4))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var remaining atomic.Int64
//	remaining.Store(1000)
//
//	var step parklot.RunnableFunc
//	step = func(w *parklot.Worker) {
//		if remaining.Add(-1) == 0 {
//			pool.Shutdown()
//			return
//		}
//		w.Schedule(parklot.HintFifo, parklot.NewTask(step))
//	}
//
//	if err := pool.Run(parklot.NewTask(step)); err != nil {
//		log.Fatal(err)
//	}
package parklot
