// Package taskqueue carries crew task dispatches from the execution
// runtime to the worker pool that runs them.
package taskqueue

import (
	"context"
	"time"

	"github.com/crewflow/crewflow/pkg/api"
)

// DispatchTask is one crew task handed to a worker. Done must be called
// exactly once with the task's result; it routes the completion back to
// the dispatching runtime.
type DispatchTask struct {
	InstanceID string
	Request    api.TaskRequest
	Done       func(api.TaskResult)

	EnqueuedAt time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t DispatchTask) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*DispatchTask, error)

	// TryDequeue removes and returns the next task without blocking,
	// reporting false when the queue is empty. Used to drain on shutdown.
	TryDequeue() (*DispatchTask, bool)

	// Len returns the approximate number of tasks queued.
	Len() int
}
