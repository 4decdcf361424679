package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewflow/crewflow/pkg/api"
)

func TestInMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewInMemoryQueue(4)
	ctx := context.Background()

	task := DispatchTask{
		InstanceID: "i1",
		Request:    api.TaskRequest{TaskID: "t1", CrewID: "c1"},
		Done:       func(api.TaskResult) {},
		EnqueuedAt: time.Now(),
	}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.Request.TaskID != "t1" || got.InstanceID != "i1" {
		t.Fatalf("dequeued = %+v", got)
	}
	if got.Done == nil {
		t.Fatal("done callback lost in transit")
	}
	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0", q.Len())
	}
}

func TestInMemoryQueue_DequeueRespectsContext(t *testing.T) {
	q := NewInMemoryQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Dequeue err = %v, want deadline exceeded", err)
	}
}

func TestInMemoryQueue_EnqueueBlocksWhenFull(t *testing.T) {
	q := NewInMemoryQueue(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, DispatchTask{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	full, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(full, DispatchTask{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Enqueue on full queue err = %v, want deadline exceeded", err)
	}
}

func TestInMemoryQueue_TryDequeue(t *testing.T) {
	q := NewInMemoryQueue(2)

	if _, ok := q.TryDequeue(); ok {
		t.Fatal("TryDequeue on an empty queue must report false")
	}

	if err := q.Enqueue(context.Background(), DispatchTask{InstanceID: "i1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got, ok := q.TryDequeue()
	if !ok || got.InstanceID != "i1" {
		t.Fatalf("TryDequeue = %+v, %v", got, ok)
	}
}

func TestInMemoryQueue_DefaultCapacity(t *testing.T) {
	q := NewInMemoryQueue(0)
	if cap(q.ch) != 1024 {
		t.Fatalf("default capacity = %d, want 1024", cap(q.ch))
	}
}
