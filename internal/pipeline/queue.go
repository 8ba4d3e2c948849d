package pipeline

import (
	"context"
	"sync"

	"github.com/conneroisu/bruwatch/internal/errors"
)

// TaskKind selects the parse strategy of a task.
type TaskKind int

const (
	// TaskParse runs the structural parser on the whole file.
	TaskParse TaskKind = iota
	// TaskRedacted strips body blocks, parses the skeleton and reassembles.
	TaskRedacted
)

// String returns the string representation of the TaskKind
func (k TaskKind) String() string {
	switch k {
	case TaskParse:
		return "parse"
	case TaskRedacted:
		return "redacted"
	default:
		return "unknown"
	}
}

// Task is one unit of work for the worker pool.
type Task struct {
	Kind   TaskKind
	Path   string
	Text   string
	future *Future
}

// Queue error definitions
var (
	ErrQueueClosed = errors.NewInternalError(errors.ErrCodeQueueClosed, "task queue has been closed", nil)
	ErrQueueFull   = errors.NewInternalError(errors.ErrCodeQueueFull, "task queue is full", nil)
)

// TaskQueue is a bounded task queue with a priority lane. Priority tasks
// are handed out before regular ones when both are waiting.
type TaskQueue struct {
	// tasks holds regular tasks
	tasks chan *Task
	// priority holds on-demand tasks
	priority chan *Task
	// done is closed on shutdown; the task channels are never closed
	done      chan struct{}
	closeOnce sync.Once
	// mu makes Close wait for in-flight enqueues before draining
	mu     sync.RWMutex
	closed bool
}

// NewTaskQueue creates a queue holding up to size regular tasks and size
// priority tasks.
func NewTaskQueue(size int) *TaskQueue {
	if size < 1 {
		size = 1
	}
	return &TaskQueue{
		tasks:    make(chan *Task, size),
		priority: make(chan *Task, size),
		done:     make(chan struct{}),
	}
}

// Enqueue adds a regular task, blocking while the queue is full.
func (q *TaskQueue) Enqueue(ctx context.Context, t *Task) error {
	return q.enqueue(ctx, q.tasks, t)
}

// EnqueuePriority adds a priority task, blocking while its lane is full.
func (q *TaskQueue) EnqueuePriority(ctx context.Context, t *Task) error {
	return q.enqueue(ctx, q.priority, t)
}

// TryEnqueue adds a regular task without blocking.
func (q *TaskQueue) TryEnqueue(t *Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *TaskQueue) enqueue(ctx context.Context, lane chan *Task, t *Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case lane <- t:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// next returns the next task, preferring the priority lane. It reports
// false once the queue is closed or ctx ends.
func (q *TaskQueue) next(ctx context.Context) (*Task, bool) {
	select {
	case t := <-q.priority:
		return t, true
	default:
	}

	select {
	case t := <-q.priority:
		return t, true
	case t := <-q.tasks:
		return t, true
	case <-q.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Close stops the queue. Tasks still waiting are failed with
// ErrQueueClosed.
func (q *TaskQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)

		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		for {
			select {
			case t := <-q.priority:
				t.future.resolve(nil, ErrQueueClosed)
			case t := <-q.tasks:
				t.future.resolve(nil, ErrQueueClosed)
			default:
				return
			}
		}
	})
}

// Stats returns current queue statistics for monitoring.
func (q *TaskQueue) Stats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return QueueStats{
		TasksQueued:    len(q.tasks),
		PriorityQueued: len(q.priority),
		Closed:         q.closed,
	}
}

// QueueStats provides queue health and capacity information.
type QueueStats struct {
	TasksQueued    int
	PriorityQueued int
	Closed         bool
}
