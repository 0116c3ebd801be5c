package parklot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopTask() *Task {
	return NewTask(RunnableFunc(func(*Worker) {}))
}

func makeTasks(n int) []*Task {
	out := make([]*Task, n)
	for i := range out {
		out[i] = noopTask()
	}
	return out
}

func batchOf(tasks []*Task) Batch {
	var b Batch
	for _, t := range tasks {
		b.Push(t)
	}
	return b
}

func TestBoundedQueue_PushPopFIFO(t *testing.T) {
	var q boundedQueue
	tasks := makeTasks(10)
	b := batchOf(tasks)
	require.Nil(t, q.push(&b))
	require.Equal(t, uint32(10), q.size())
	for i, want := range tasks {
		got := q.pop()
		require.Equal(t, want, got, "task %d out of order", i)
	}
	assert.Nil(t, q.pop())
}

func TestBoundedQueue_OverflowMigratesHalf(t *testing.T) {
	var q boundedQueue
	tasks := makeTasks(2 * boundedCapacity)
	b := batchOf(tasks)

	over := q.push(&b)
	require.NotNil(t, over, "pushing 512 tasks into a 256-slot ring must overflow")

	// The ring fills with the first 256 tasks, then half migrate out,
	// followed by the 256 that never fit.
	assert.Equal(t, uint32(boundedCapacity/2), q.size())
	assert.GreaterOrEqual(t, over.Len(), uint(boundedCapacity/2))
	assert.Equal(t, uint(boundedCapacity+boundedCapacity/2), over.Len())
	assert.Equal(t, tasks[0], over.Pop(), "migrated chunk leads with the oldest task")

	// The ring retains the tail of the originally fitting run.
	assert.Equal(t, tasks[boundedCapacity/2], q.pop())
}

func TestBoundedQueue_IndexWraparound(t *testing.T) {
	var q boundedQueue
	// Seed both cursors just below the uint32 boundary so pushes and pops
	// straddle the wrap.
	start := ^uint32(0) - 10
	q.head.Store(start)
	q.tail.Store(start)

	tasks := makeTasks(20)
	for i := 0; i < 20; i++ {
		b := BatchFrom(tasks[i])
		require.Nil(t, q.push(&b))
	}
	require.Equal(t, uint32(20), q.size())
	for i := 0; i < 20; i++ {
		require.Equal(t, tasks[i], q.pop(), "task %d out of order across the wrap", i)
	}
	assert.Nil(t, q.pop())
	assert.Less(t, q.head.Load(), start, "head must have wrapped")
}

func TestBoundedQueue_StealBoundedTakesAtMostHalf(t *testing.T) {
	var victim, thief boundedQueue
	tasks := makeTasks(100)
	b := batchOf(tasks)
	require.Nil(t, victim.push(&b))

	first := thief.stealBounded(&victim)
	require.Equal(t, tasks[0], first, "the oldest victim task is returned directly")
	assert.Equal(t, uint32(49), thief.size(), "steal keeps n-1 tasks in the thief's buffer")
	assert.Equal(t, uint32(50), victim.size())

	// Stolen tasks preserve order behind the returned one.
	for i := 1; i < 50; i++ {
		require.Equal(t, tasks[i], thief.pop())
	}
}

func TestBoundedQueue_StealBoundedSingleTask(t *testing.T) {
	var victim, thief boundedQueue
	task := noopTask()
	b := BatchFrom(task)
	require.Nil(t, victim.push(&b))

	assert.Equal(t, task, thief.stealBounded(&victim))
	assert.Zero(t, thief.size())
	assert.Zero(t, victim.size())
	assert.Nil(t, thief.stealBounded(&victim))
}

func TestBoundedQueue_StealUnbounded(t *testing.T) {
	var target unboundedQueue
	target.init()
	var q boundedQueue

	tasks := makeTasks(5)
	target.push(batchOf(tasks))

	first := q.stealUnbounded(&target)
	require.Equal(t, tasks[0], first)
	assert.Equal(t, uint32(4), q.size(), "remaining tasks drain into the caller's ring")
	for i := 1; i < 5; i++ {
		require.Equal(t, tasks[i], q.pop())
	}
	assert.Nil(t, q.stealUnbounded(&target))
}

func TestBoundedQueue_StealUnboundedRespectsConsumerToken(t *testing.T) {
	var target unboundedQueue
	target.init()
	target.push(BatchFrom(noopTask()))
	require.True(t, target.tryAcquireConsumer())

	var q boundedQueue
	assert.Nil(t, q.stealUnbounded(&target), "held consumer token must block the steal")
	target.releaseConsumer()
	assert.NotNil(t, q.stealUnbounded(&target))
}
