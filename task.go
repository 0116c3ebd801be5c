package parklot

import (
	"sync/atomic"
)

// Runnable is the unit of work executed by the pool. Run receives the worker
// executing it, so a task can schedule follow-up work onto the worker's
// local queues.
type Runnable interface {
	Run(w *Worker)
}

// RunnableFunc adapts a plain function to the Runnable interface.
type RunnableFunc func(w *Worker)

// Run implements Runnable.
func (f RunnableFunc) Run(w *Worker) { f(w) }

// Task is an intrusive queue node wrapping a Runnable. A task must not be
// scheduled again until its previous execution has started; the intrusive
// link is owned by whichever queue currently holds the task.
type Task struct {
	next     atomic.Pointer[Task]
	runnable Runnable
}

// NewTask wraps r in a schedulable task. r must be non-nil.
func NewTask(r Runnable) *Task {
	if r == nil {
		panic("parklot: nil runnable")
	}
	return &Task{runnable: r}
}

// Batch is an ordered run of tasks supporting O(1) append and splice. The
// zero value is an empty batch.
type Batch struct {
	head *Task
	tail *Task
	size uint
}

// BatchFrom returns a batch holding the single task t.
func BatchFrom(t *Task) Batch {
	if t == nil {
		panic("parklot: nil task")
	}
	t.next.Store(nil)
	return Batch{head: t, tail: t, size: 1}
}

// Len returns the number of tasks in the batch.
func (b *Batch) Len() uint { return b.size }

// Empty reports whether the batch holds no tasks.
func (b *Batch) Empty() bool { return b.size == 0 }

// Push appends t to the batch.
func (b *Batch) Push(t *Task) {
	b.Append(BatchFrom(t))
}

// Append splices other onto the end of b in O(1). other must not be used
// afterwards.
func (b *Batch) Append(other Batch) {
	if other.Empty() {
		return
	}
	if b.Empty() {
		*b = other
		return
	}
	b.tail.next.Store(other.head)
	b.tail = other.tail
	b.size += other.size
}

// Pop removes and returns the first task, or nil if the batch is empty.
func (b *Batch) Pop() *Task {
	t := b.head
	if t == nil {
		return nil
	}
	b.head = t.next.Load()
	if b.head == nil {
		b.tail = nil
	}
	b.size--
	t.next.Store(nil)
	return t
}
