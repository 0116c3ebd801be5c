package parklot

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a point-in-time snapshot of pool runtime statistics, returned
// by Pool.Metrics. All fields are cumulative since pool creation except the
// latency percentiles, which are streaming estimates.
type Metrics struct {
	// TasksExecuted counts tasks that ran to completion (panicking tasks
	// are excluded).
	TasksExecuted uint64
	// TasksStolen counts successful steal operations (each may transfer
	// several tasks).
	TasksStolen uint64
	// TasksOverflowed counts tasks forwarded to an overflow queue because a
	// bounded ring was full: the half migrated out of the ring plus any
	// part of the pushed batch that did not fit.
	TasksOverflowed uint64
	// IdleParks counts worker suspensions on the idle queue.
	IdleParks uint64

	// Latency percentiles of task execution time, estimated with the
	// P-Square algorithm (O(1) per observation, no sample retention).
	LatencyP50 time.Duration
	LatencyP99 time.Duration
	LatencyMax time.Duration
}

// metricsCollector is the internal, thread-safe accumulator. Counters are
// atomic; the quantile estimators share one mutex since observations come
// one per task completion.
type metricsCollector struct {
	tasksExecuted   atomic.Uint64
	tasksStolen     atomic.Uint64
	tasksOverflowed atomic.Uint64
	idleParks       atomic.Uint64
	latencyMax      atomic.Uint64

	mu  sync.Mutex
	p50 *pSquareQuantile
	p99 *pSquareQuantile
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		p50: newPSquareQuantile(0.50),
		p99: newPSquareQuantile(0.99),
	}
}

// observeTask records one task execution time, in nanoseconds.
func (m *metricsCollector) observeTask(nanos uint64) {
	m.tasksExecuted.Add(1)
	for {
		old := m.latencyMax.Load()
		if nanos <= old || m.latencyMax.CompareAndSwap(old, nanos) {
			break
		}
	}
	m.mu.Lock()
	m.p50.observe(float64(nanos))
	m.p99.observe(float64(nanos))
	m.mu.Unlock()
}

func (m *metricsCollector) snapshot() Metrics {
	out := Metrics{
		TasksExecuted:   m.tasksExecuted.Load(),
		TasksStolen:     m.tasksStolen.Load(),
		TasksOverflowed: m.tasksOverflowed.Load(),
		IdleParks:       m.idleParks.Load(),
		LatencyMax:      time.Duration(m.latencyMax.Load()),
	}
	m.mu.Lock()
	out.LatencyP50 = time.Duration(m.p50.estimate())
	out.LatencyP99 = time.Duration(m.p99.estimate())
	m.mu.Unlock()
	return out
}
