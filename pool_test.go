package parklot

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunCountdown(t *testing.T) {
	pool, err := New(WithMaxWorkers(4), WithMetrics(true))
	require.NoError(t, err)

	const total = 10_000
	var remaining atomic.Int64
	remaining.Store(total)

	var step RunnableFunc
	step = func(w *Worker) {
		if remaining.Add(-1) <= 0 {
			pool.Shutdown()
			return
		}
		w.Schedule(HintFifo, NewTask(step))
	}
	seed := RunnableFunc(func(w *Worker) {
		// Fork one chain per worker, then join the countdown.
		for i := 1; i < pool.MaxWorkers(); i++ {
			w.Schedule(HintFifo, NewTask(step))
		}
		step(w)
	})

	require.NoError(t, pool.Run(NewTask(seed)))
	pool.Wait()

	assert.LessOrEqual(t, remaining.Load(), int64(0))
	m := pool.Metrics()
	assert.GreaterOrEqual(t, m.TasksExecuted, uint64(total))
}

func TestPool_ScheduleFromOutside(t *testing.T) {
	pool, err := New(WithMaxWorkers(4))
	require.NoError(t, err)

	const total = 500
	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
			wg.Done()
		}))))
	}
	wg.Wait()

	pool.Shutdown()
	pool.Wait()
}

func TestPool_ScheduleAfterShutdown(t *testing.T) {
	pool, err := New(WithMaxWorkers(2))
	require.NoError(t, err)
	pool.Shutdown()
	pool.Wait()

	err = pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
		t.Error("task must not run after shutdown")
	})))
	assert.ErrorIs(t, err, ErrPoolShutdown)
	assert.ErrorIs(t, pool.Run(nil), ErrPoolShutdown)
}

func TestPool_ShutdownIdempotent(t *testing.T) {
	pool, err := New(WithMaxWorkers(1))
	require.NoError(t, err)
	pool.Shutdown()
	pool.Shutdown()
	pool.Wait()
}

func TestPool_RunRejectsLivePool(t *testing.T) {
	pool, err := New(WithMaxWorkers(2))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
		wg.Done()
	}))))
	wg.Wait()

	assert.ErrorIs(t, pool.Run(nil), ErrPoolRunning)
	pool.Shutdown()
	pool.Wait()
}

func TestPool_ShutdownUnblocksIdleWorkers(t *testing.T) {
	pool, err := New(WithMaxWorkers(4))
	require.NoError(t, err)

	// Spin up workers, let them drain and suspend.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
			wg.Done()
		}))))
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not complete; idle workers were not released")
	}
}

func TestPool_GlobalQueueProgress(t *testing.T) {
	// A task pushed only to the global queue must execute even while
	// workers are saturated with local work.
	pool, err := New(WithMaxWorkers(2))
	require.NoError(t, err)

	var sawGlobal atomic.Bool
	var spin RunnableFunc
	spin = func(w *Worker) {
		if sawGlobal.Load() {
			pool.Shutdown()
			return
		}
		w.Schedule(HintFifo, NewTask(spin))
	}

	require.NoError(t, pool.Schedule(NewTask(spin)))
	require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
		sawGlobal.Store(true)
	}))))
	pool.Wait()
	assert.True(t, sawGlobal.Load())
}

func TestPool_TaskPanicDoesNotKillWorker(t *testing.T) {
	pool, err := New(WithMaxWorkers(1))
	require.NoError(t, err)

	var ran atomic.Bool
	require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
		panic("boom")
	}))))
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
		ran.Store(true)
		wg.Done()
	}))))
	wg.Wait()
	assert.True(t, ran.Load(), "the worker must survive a panicking task")
	pool.Shutdown()
	pool.Wait()
}

func TestPool_SingleIdleWake(t *testing.T) {
	// With an idle worker available, a schedule wakes it rather than
	// spawning beyond it.
	pool, err := New(WithMaxWorkers(8))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
		wg.Done()
	}))))
	wg.Wait()

	// Wait for every spawned worker to go idle.
	waitSync(t, pool, func(s poolSync) bool { return s.idle > 0 && s.idle == s.spawned })
	spawnedBefore := pool.loadSync().spawned

	wg.Add(1)
	require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
		wg.Done()
	}))))
	wg.Wait()

	assert.Equal(t, spawnedBefore, pool.loadSync().spawned,
		"an idle wake must not spawn an additional worker")
	pool.Shutdown()
	pool.Wait()
}

func TestPool_MetricsSnapshot(t *testing.T) {
	pool, err := New(WithMaxWorkers(2), WithMetrics(true))
	require.NoError(t, err)

	const total = 100
	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		require.NoError(t, pool.Schedule(NewTask(RunnableFunc(func(*Worker) {
			wg.Done()
		}))))
	}
	wg.Wait()
	pool.Shutdown()
	pool.Wait()

	m := pool.Metrics()
	assert.Equal(t, uint64(total), m.TasksExecuted)
	assert.GreaterOrEqual(t, m.LatencyMax, m.LatencyP50)
}

func TestPool_MetricsDisabled(t *testing.T) {
	pool, err := New(WithMaxWorkers(1))
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, pool.Metrics())
	pool.Shutdown()
	pool.Wait()
}

func TestNew_OptionErrors(t *testing.T) {
	_, err := New(WithMaxWorkers(syncCountMask + 1))
	assert.ErrorIs(t, err, ErrTooManyWorkers)

	pool, err := New(WithMaxWorkers(-5), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.MaxWorkers(), "non-positive ceilings clamp to 1")
}

// waitSync spins until the predicate holds for the pool's sync word.
func waitSync(t *testing.T, p *Pool, pred func(poolSync) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !pred(p.loadSync()) {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for pool state; have %+v", p.loadSync())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
