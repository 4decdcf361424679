package api

import "context"

// TaskStatus is the outcome reported by the task-execution collaborator.
type TaskStatus string

const (
	TaskSuccess TaskStatus = "success"
	TaskFailure TaskStatus = "failure"
)

// TaskRequest is the dispatch request the runtime emits for each scheduled
// task. State is a snapshot of the flow state at dispatch time.
type TaskRequest struct {
	CrewID   string
	TaskID   string
	TaskName string
	State    map[string]any
}

// TaskResult is the asynchronous completion signal for a dispatched task.
type TaskResult struct {
	CrewID string
	TaskID string
	Status TaskStatus

	// Output is the task's output. String outputs containing a JSON object
	// are parsed and merged into condition-evaluation contexts downstream.
	Output any

	// Err carries the failure cause when Status is TaskFailure.
	Err error
}

// TaskExecutor is the task-execution collaborator: it actually runs the
// unit of work behind a task, typically by invoking an agent backend.
//
// Dispatch must not block on task execution. Implementations must deliver
// exactly one TaskResult to done for every accepted dispatch, even when the
// task is abandoned; the runtime counts on this to reach a fixed point.
// Retry and timeout policy belong to the executor, not the runtime.
type TaskExecutor interface {
	Dispatch(ctx context.Context, req TaskRequest, done func(TaskResult)) error
}
