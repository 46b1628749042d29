package taskqueue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process work-list. Tasks run one at a time in
// submission order. A task whose idempotency key is already pending is
// dropped.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []Task
	keys    map[string]bool
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{keys: make(map[string]bool)}
}

// Publish appends the task to the work-list.
func (q *MemoryQueue) Publish(_ context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	key := task.IdempotencyKey()
	if !q.keys[key] {
		q.keys[key] = true
		q.pending = append(q.pending, task)
	}
	q.mu.Unlock()
	return nil
}

// Len returns the number of pending tasks.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Pending returns a copy of the pending tasks in run order.
func (q *MemoryQueue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.pending...)
}

func (q *MemoryQueue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Task{}, false
	}
	task := q.pending[0]
	q.pending = q.pending[1:]
	delete(q.keys, task.IdempotencyKey())
	return task, true
}

// Drain runs tasks until the work-list is empty, including tasks published
// by the handler itself. Handler errors are passed to onError and do not
// stop the drain.
func (q *MemoryQueue) Drain(ctx context.Context, h HandlerFunc, onError func(Task, error)) {
	for ctx.Err() == nil {
		task, ok := q.pop()
		if !ok {
			return
		}
		if err := h(ctx, task); err != nil && onError != nil {
			onError(task, err)
		}
	}
}
