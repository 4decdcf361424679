package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crewflow/crewflow/internal/taskqueue"
	"github.com/crewflow/crewflow/pkg/api"
)

// ErrNoHandler is reported as a task failure when a dispatch names a task
// no function was registered for and no default handler exists.
var ErrNoHandler = errors.New("no handler registered for task")

// ErrExecutorStopped is reported as the failure of dispatches still queued
// when the executor shuts down.
var ErrExecutorStopped = errors.New("executor stopped before task ran")

// TaskFunc runs one crew task against a snapshot of the flow state and
// returns the task's output.
type TaskFunc func(ctx context.Context, req api.TaskRequest) (any, error)

// RetryPolicy controls how a registered task is retried on error.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff is the wait before attempt n+1, multiplied by n.
	Backoff time.Duration
}

type handler struct {
	fn    TaskFunc
	retry RetryPolicy
}

// FuncExecutor is a queue-backed api.TaskExecutor that runs registered Go
// functions on a pool of worker goroutines. It has its own lifecycle:
// a cancelled flow run stops producing dispatches, but tasks already
// accepted still run to completion and deliver their results.
type FuncExecutor struct {
	queue taskqueue.Queue

	mu          sync.RWMutex
	handlers    map[string]handler
	defaultFunc *handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Ensure FuncExecutor implements api.TaskExecutor.
var _ api.TaskExecutor = (*FuncExecutor)(nil)

// NewFuncExecutor creates an executor backed by an in-memory queue with
// the given capacity.
func NewFuncExecutor(queueCapacity int) *FuncExecutor {
	return &FuncExecutor{
		queue:    taskqueue.NewInMemoryQueue(queueCapacity),
		handlers: make(map[string]handler),
	}
}

// Register binds fn to the given task id.
func (e *FuncExecutor) Register(taskID string, fn TaskFunc) {
	e.RegisterWithRetry(taskID, fn, RetryPolicy{MaxAttempts: 1})
}

// RegisterWithRetry binds fn to the given task id with a retry policy.
func (e *FuncExecutor) RegisterWithRetry(taskID string, fn TaskFunc, retry RetryPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[taskID] = handler{fn: fn, retry: retry}
}

// RegisterDefault binds fn as the fallback for task ids with no
// dedicated handler.
func (e *FuncExecutor) RegisterDefault(fn TaskFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultFunc = &handler{fn: fn, retry: RetryPolicy{MaxAttempts: 1}}
}

func (e *FuncExecutor) handlerFor(taskID string) (handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if h, ok := e.handlers[taskID]; ok {
		return h, true
	}
	if e.defaultFunc != nil {
		return *e.defaultFunc, true
	}
	return handler{}, false
}

// Start launches the worker pool. Tasks dispatched before Start sit in
// the queue until a worker picks them up.
func (e *FuncExecutor) Start(concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go e.runWorker(ctx)
	}
}

// Stop shuts the pool down and waits for in-flight tasks to finish. Tasks
// still queued are failed with ErrExecutorStopped: every accepted dispatch
// delivers a result, so a runtime draining completions never hangs.
func (e *FuncExecutor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	for {
		task, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		task.Done(api.TaskResult{
			CrewID: task.Request.CrewID,
			TaskID: task.Request.TaskID,
			Status: api.TaskFailure,
			Err:    fmt.Errorf("%w: %s", ErrExecutorStopped, task.Request.TaskID),
		})
	}
}

// Dispatch enqueues the request for the worker pool. The done callback is
// invoked exactly once, from a worker goroutine, with the task's result.
func (e *FuncExecutor) Dispatch(ctx context.Context, req api.TaskRequest, done func(api.TaskResult)) error {
	return e.queue.Enqueue(ctx, taskqueue.DispatchTask{
		Request:    req,
		Done:       done,
		EnqueuedAt: time.Now(),
	})
}

func (e *FuncExecutor) runWorker(ctx context.Context) {
	defer e.wg.Done()
	for {
		task, err := e.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		e.execute(ctx, task)
	}
}

func (e *FuncExecutor) execute(ctx context.Context, task *taskqueue.DispatchTask) {
	req := task.Request
	res := api.TaskResult{
		CrewID: req.CrewID,
		TaskID: req.TaskID,
	}

	h, ok := e.handlerFor(req.TaskID)
	if !ok {
		res.Status = api.TaskFailure
		res.Err = fmt.Errorf("%w: %s", ErrNoHandler, req.TaskID)
		task.Done(res)
		return
	}

	output, err := e.runWithRetry(ctx, h, req)
	if err != nil {
		res.Status = api.TaskFailure
		res.Err = err
	} else {
		res.Status = api.TaskSuccess
		res.Output = output
	}
	task.Done(res)
}

func (e *FuncExecutor) runWithRetry(ctx context.Context, h handler, req api.TaskRequest) (any, error) {
	attempts := h.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		output, err := h.fn(ctx, req)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(h.retry.Backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, lastErr
		}
	}
	return nil, lastErr
}
