package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crewflow/crewflow/pkg/api"
)

func collectResult(t *testing.T) (func(api.TaskResult), func() api.TaskResult) {
	t.Helper()
	ch := make(chan api.TaskResult, 1)
	done := func(res api.TaskResult) { ch <- res }
	wait := func() api.TaskResult {
		select {
		case res := <-ch:
			return res
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for task result")
			return api.TaskResult{}
		}
	}
	return done, wait
}

func TestFuncExecutor_StopFailsQueuedTasks(t *testing.T) {
	e := NewFuncExecutor(8)
	e.Register("queued", func(ctx context.Context, req api.TaskRequest) (any, error) {
		return "never runs", nil
	})

	// No worker ever started: the dispatch sits in the queue until Stop
	// fails it, so the dispatcher still gets its one result.
	done, wait := collectResult(t)
	if err := e.Dispatch(context.Background(), api.TaskRequest{TaskID: "queued"}, done); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	e.Stop()

	res := wait()
	if res.Status != api.TaskFailure {
		t.Fatalf("status = %s, want failure", res.Status)
	}
	if !errors.Is(res.Err, ErrExecutorStopped) {
		t.Fatalf("err = %v, want ErrExecutorStopped", res.Err)
	}
	if res.TaskID != "queued" {
		t.Fatalf("result identity = %s", res.TaskID)
	}
}

func TestFuncExecutor_DispatchesRegisteredFunc(t *testing.T) {
	e := NewFuncExecutor(8)
	e.Register("gather", func(ctx context.Context, req api.TaskRequest) (any, error) {
		return "output for " + req.TaskName, nil
	})
	e.Start(1)
	defer e.Stop()

	done, wait := collectResult(t)
	err := e.Dispatch(context.Background(), api.TaskRequest{
		CrewID:   "research",
		TaskID:   "gather",
		TaskName: "Gather sources",
	}, done)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	res := wait()
	if res.Status != api.TaskSuccess {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.Output != "output for Gather sources" {
		t.Fatalf("output = %v", res.Output)
	}
	if res.CrewID != "research" || res.TaskID != "gather" {
		t.Fatalf("result identity = %s/%s", res.CrewID, res.TaskID)
	}
}

func TestFuncExecutor_UnregisteredTaskFails(t *testing.T) {
	e := NewFuncExecutor(8)
	e.Start(1)
	defer e.Stop()

	done, wait := collectResult(t)
	if err := e.Dispatch(context.Background(), api.TaskRequest{TaskID: "ghost"}, done); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	res := wait()
	if res.Status != api.TaskFailure {
		t.Fatalf("status = %s, want failure", res.Status)
	}
	if !errors.Is(res.Err, ErrNoHandler) {
		t.Fatalf("err = %v, want ErrNoHandler", res.Err)
	}
}

func TestFuncExecutor_DefaultHandler(t *testing.T) {
	e := NewFuncExecutor(8)
	e.RegisterDefault(func(ctx context.Context, req api.TaskRequest) (any, error) {
		return "default:" + req.TaskID, nil
	})
	e.Start(1)
	defer e.Stop()

	done, wait := collectResult(t)
	if err := e.Dispatch(context.Background(), api.TaskRequest{TaskID: "anything"}, done); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	res := wait()
	if res.Status != api.TaskSuccess || res.Output != "default:anything" {
		t.Fatalf("result = %+v", res)
	}
}

func TestFuncExecutor_RetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32

	e := NewFuncExecutor(8)
	e.RegisterWithRetry("flaky", func(ctx context.Context, req api.TaskRequest) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond})
	e.Start(1)
	defer e.Stop()

	done, wait := collectResult(t)
	if err := e.Dispatch(context.Background(), api.TaskRequest{TaskID: "flaky"}, done); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	res := wait()
	if res.Status != api.TaskSuccess {
		t.Fatalf("status = %s after retries, err = %v", res.Status, res.Err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestFuncExecutor_RetryExhaustionReportsLastError(t *testing.T) {
	boom := errors.New("still broken")

	e := NewFuncExecutor(8)
	e.RegisterWithRetry("broken", func(ctx context.Context, req api.TaskRequest) (any, error) {
		return nil, boom
	}, RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond})
	e.Start(1)
	defer e.Stop()

	done, wait := collectResult(t)
	if err := e.Dispatch(context.Background(), api.TaskRequest{TaskID: "broken"}, done); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	res := wait()
	if res.Status != api.TaskFailure || !errors.Is(res.Err, boom) {
		t.Fatalf("result = %+v", res)
	}
}

func TestFuncExecutor_ConcurrentDispatches(t *testing.T) {
	var running atomic.Int32
	var peak atomic.Int32

	e := NewFuncExecutor(64)
	e.Register("slow", func(ctx context.Context, req api.TaskRequest) (any, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})
	e.Start(4)
	defer e.Stop()

	ch := make(chan api.TaskResult, 8)
	for i := 0; i < 8; i++ {
		if err := e.Dispatch(context.Background(), api.TaskRequest{TaskID: "slow"}, func(res api.TaskResult) {
			ch <- res
		}); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	for i := 0; i < 8; i++ {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}

	if peak.Load() < 2 {
		t.Fatalf("peak concurrency = %d, want parallel execution", peak.Load())
	}
}

func TestFuncExecutor_StopWaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool

	e := NewFuncExecutor(8)
	e.Register("long", func(ctx context.Context, req api.TaskRequest) (any, error) {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil, nil
	})
	e.Start(1)

	done, _ := collectResult(t)
	if err := e.Dispatch(context.Background(), api.TaskRequest{TaskID: "long"}, done); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	<-started
	e.Stop()
	if !finished.Load() {
		t.Fatal("Stop returned before the in-flight task finished")
	}
}
