package crewflow

import (
	"context"
	"database/sql"

	"github.com/crewflow/crewflow/internal/persistence"
	"github.com/crewflow/crewflow/internal/runtime"
	"github.com/crewflow/crewflow/pkg/worker"
)

// Runner bundles a runtime, a function-backed executor and a store to
// provide a simple single-process flow runner.
//
// Typical usage:
//
//	runner := crewflow.NewLocalRunner()
//	runner.Executor.Register("gather", gather)
//	runner.Executor.Register("summarize", summarize)
//	runner.Start(4)
//	defer runner.Stop()
//
//	spec, _ := crewflow.Compile(nodes, edges, "research")
//	inst, err := runner.Run(ctx, spec, nil)
type Runner struct {
	// Executor runs registered Go functions for dispatched tasks.
	Executor *worker.FuncExecutor

	runtime   *runtime.Runtime
	instances persistence.InstanceStore
	events    persistence.EventStore
	states    persistence.StateStore
}

// NewLocalRunner constructs a Runner backed by an in-memory store and an
// in-memory dispatch queue. Intended for local development, tests, and
// single-process deployments.
func NewLocalRunner() *Runner {
	return NewLocalRunnerWithObserver(nil)
}

// NewLocalRunnerWithObserver is NewLocalRunner with the given Observer.
func NewLocalRunnerWithObserver(obs Observer) *Runner {
	exec := worker.NewFuncExecutor(1024)
	mem := persistence.NewInMemoryStore()
	rt, _ := runtime.New(runtime.Config{
		Executor:  exec,
		Observer:  obs,
		Instances: mem,
		States:    mem,
		Events:    mem,
	})
	return &Runner{
		Executor:  exec,
		runtime:   rt,
		instances: mem,
		events:    mem,
		states:    mem,
	}
}

// NewSQLiteRunner constructs a Runner whose instances, state records and
// events are persisted in the given SQLite database.
func NewSQLiteRunner(db *sql.DB) (*Runner, error) {
	return NewSQLiteRunnerWithObserver(db, nil)
}

// NewSQLiteRunnerWithObserver is NewSQLiteRunner with the given Observer.
func NewSQLiteRunnerWithObserver(db *sql.DB, obs Observer) (*Runner, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	exec := worker.NewFuncExecutor(1024)
	rt, err := runtime.New(runtime.Config{
		Executor:  exec,
		Observer:  obs,
		Instances: store,
		States:    store,
		Events:    store,
	})
	if err != nil {
		return nil, err
	}
	return &Runner{
		Executor:  exec,
		runtime:   rt,
		instances: store,
		events:    store,
		states:    store,
	}, nil
}

// Start launches the executor's worker pool.
func (r *Runner) Start(concurrency int) {
	r.Executor.Start(concurrency)
}

// Stop shuts the worker pool down after in-flight tasks finish.
func (r *Runner) Stop() {
	r.Executor.Stop()
}

// Run executes one instance of spec to a terminal status. Cancelling ctx
// stops new dispatches; tasks already running still report back and the
// instance ends as StatusCancelled.
func (r *Runner) Run(ctx context.Context, spec *FlowSpecification, initial map[string]any) (*FlowInstance, error) {
	return r.runtime.Execute(ctx, spec, initial)
}

// GetInstance returns a stored execution instance by id.
func (r *Runner) GetInstance(id string) (*FlowInstance, error) {
	return r.instances.GetInstance(id)
}

// GetState returns the persisted state of an instance.
func (r *Runner) GetState(instanceID string) (map[string]any, error) {
	return r.states.GetState(instanceID)
}

// ListEvents returns the execution event trail of an instance.
func (r *Runner) ListEvents(ctx context.Context, instanceID string) ([]FlowEvent, error) {
	return r.events.ListEvents(ctx, instanceID)
}
