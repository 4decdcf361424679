package crewflow

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/crewflow/crewflow/internal/compiler"
	"github.com/crewflow/crewflow/internal/persistence"
	"github.com/crewflow/crewflow/internal/runtime"
	"github.com/crewflow/crewflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Node            = api.Node
	Edge            = api.Edge
	EdgeData        = api.EdgeData
	Task            = api.Task
	LogicType       = api.LogicType
	Condition       = api.Condition
	StateOperations = api.StateOperations
	StateWrite      = api.StateWrite

	FlowSpecification = api.FlowSpecification
	Listener          = api.Listener
	Action            = api.Action
	StartingPoint     = api.StartingPoint
	Router            = api.Router

	FlowInstance = api.FlowInstance
	Status       = api.Status
	FlowEvent    = api.FlowEvent

	TaskExecutor = api.TaskExecutor
	TaskRequest  = api.TaskRequest
	TaskResult   = api.TaskResult
	TaskStatus   = api.TaskStatus

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// CompileReport carries the warnings accumulated during compilation.
type CompileReport = compiler.Report

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export logic types for convenience.

const (
	LogicNone   = api.LogicNone
	LogicAnd    = api.LogicAnd
	LogicOr     = api.LogicOr
	LogicRouter = api.LogicRouter
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
)

// ErrNoStartingPoints is returned by Run for specifications where nothing
// can ever be scheduled.
var ErrNoStartingPoints = runtime.ErrNoStartingPoints

// Compile translates a workflow graph into an executable flow
// specification. Compilation never fails; structural problems surface as
// warnings on the returned report.
func Compile(nodes []Node, edges []Edge, flowName string) (*FlowSpecification, *CompileReport) {
	return compiler.Compile(nodes, edges, flowName)
}

// CompileAndLog compiles the graph and logs each report warning through
// logger (slog.Default when nil).
func CompileAndLog(nodes []Node, edges []Edge, flowName string, logger *slog.Logger) *FlowSpecification {
	if logger == nil {
		logger = slog.Default()
	}
	spec, report := compiler.Compile(nodes, edges, flowName)
	for _, w := range report.Warnings {
		logger.Warn("compile warning",
			slog.String("flow", flowName),
			slog.String("warning", w),
		)
	}
	return spec
}

// Runtime constructors
// These wrap the internal/runtime package so external callers never need
// to import internal packages.

// NewInMemoryRuntime returns a runtime that keeps instances, state and
// events in memory. Best for tests and single-process use.
func NewInMemoryRuntime(executor TaskExecutor) (*runtime.Runtime, error) {
	return NewInMemoryRuntimeWithObserver(executor, nil)
}

// NewInMemoryRuntimeWithObserver returns an in-memory runtime with the
// given Observer.
func NewInMemoryRuntimeWithObserver(executor TaskExecutor, obs Observer) (*runtime.Runtime, error) {
	mem := persistence.NewInMemoryStore()
	return runtime.New(runtime.Config{
		Executor:  executor,
		Observer:  obs,
		Instances: mem,
		States:    mem,
		Events:    mem,
	})
}

// NewSQLiteRuntime returns a runtime that persists instances, state
// records and events in a SQLite database.
func NewSQLiteRuntime(db *sql.DB, executor TaskExecutor) (*runtime.Runtime, error) {
	return NewSQLiteRuntimeWithObserver(db, executor, nil)
}

// NewSQLiteRuntimeWithObserver returns a SQLite-backed runtime with the
// given Observer.
func NewSQLiteRuntimeWithObserver(db *sql.DB, executor TaskExecutor, obs Observer) (*runtime.Runtime, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return runtime.New(runtime.Config{
		Executor:  executor,
		Observer:  obs,
		Instances: store,
		States:    store,
		Events:    store,
	})
}

// Run executes an already compiled specification on a bare runtime with
// the given executor and no storage. For repeated runs or durable
// storage, construct a runtime (or Runner) once and reuse it.
func Run(ctx context.Context, executor TaskExecutor, spec *FlowSpecification, initial map[string]any) (*FlowInstance, error) {
	rt, err := runtime.New(runtime.Config{Executor: executor})
	if err != nil {
		return nil, err
	}
	return rt.Execute(ctx, spec, initial)
}
