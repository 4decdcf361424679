package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the execution runtime for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay flow execution.
type Observer interface {
	// OnFlowStart is called once when an instance is first started, before
	// any starting point is dispatched.
	OnFlowStart(ctx context.Context, inst *FlowInstance)

	// OnFlowCompleted is called when an instance reaches StatusCompleted.
	OnFlowCompleted(ctx context.Context, inst *FlowInstance)

	// OnFlowFailed is called when an instance transitions to StatusFailed.
	OnFlowFailed(ctx context.Context, inst *FlowInstance, err error)

	// OnFlowCancelled is called when an instance reports StatusCancelled,
	// after the last in-flight completion has been processed.
	OnFlowCancelled(ctx context.Context, inst *FlowInstance)

	// OnTaskDispatch is called before a task request is handed to the
	// task-execution collaborator.
	OnTaskDispatch(ctx context.Context, inst *FlowInstance, req TaskRequest)

	// OnTaskCompleted is called after a completion signal has been
	// processed, for both successes and failures.
	OnTaskCompleted(ctx context.Context, inst *FlowInstance, res TaskResult, duration time.Duration)

	// OnListenerFired is called when a join point's condition is met and
	// its target tasks are about to be dispatched.
	OnListenerFired(ctx context.Context, inst *FlowInstance, listenerID string)

	// OnRouterEvaluated is called after a router condition was evaluated.
	OnRouterEvaluated(ctx context.Context, inst *FlowInstance, routerName string, result bool)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFlowStart(ctx context.Context, inst *FlowInstance)             {}
func (NoopObserver) OnFlowCompleted(ctx context.Context, inst *FlowInstance)         {}
func (NoopObserver) OnFlowFailed(ctx context.Context, inst *FlowInstance, err error) {}
func (NoopObserver) OnFlowCancelled(ctx context.Context, inst *FlowInstance)         {}
func (NoopObserver) OnTaskDispatch(ctx context.Context, inst *FlowInstance, req TaskRequest) {
}
func (NoopObserver) OnTaskCompleted(ctx context.Context, inst *FlowInstance, res TaskResult, d time.Duration) {
}
func (NoopObserver) OnListenerFired(ctx context.Context, inst *FlowInstance, listenerID string) {
}
func (NoopObserver) OnRouterEvaluated(ctx context.Context, inst *FlowInstance, routerName string, result bool) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowStart(ctx context.Context, inst *FlowInstance) {
	for _, o := range c.observers {
		o.OnFlowStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnFlowCompleted(ctx context.Context, inst *FlowInstance) {
	for _, o := range c.observers {
		o.OnFlowCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnFlowFailed(ctx context.Context, inst *FlowInstance, err error) {
	for _, o := range c.observers {
		o.OnFlowFailed(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnFlowCancelled(ctx context.Context, inst *FlowInstance) {
	for _, o := range c.observers {
		o.OnFlowCancelled(ctx, inst)
	}
}

func (c *CompositeObserver) OnTaskDispatch(ctx context.Context, inst *FlowInstance, req TaskRequest) {
	for _, o := range c.observers {
		o.OnTaskDispatch(ctx, inst, req)
	}
}

func (c *CompositeObserver) OnTaskCompleted(ctx context.Context, inst *FlowInstance, res TaskResult, d time.Duration) {
	for _, o := range c.observers {
		o.OnTaskCompleted(ctx, inst, res, d)
	}
}

func (c *CompositeObserver) OnListenerFired(ctx context.Context, inst *FlowInstance, listenerID string) {
	for _, o := range c.observers {
		o.OnListenerFired(ctx, inst, listenerID)
	}
}

func (c *CompositeObserver) OnRouterEvaluated(ctx context.Context, inst *FlowInstance, routerName string, result bool) {
	for _, o := range c.observers {
		o.OnRouterEvaluated(ctx, inst, routerName, result)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs flow / task lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnFlowStart(ctx context.Context, inst *FlowInstance) {
	o.Logger.InfoContext(ctx, "flow_start",
		slog.String("flow", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnFlowCompleted(ctx context.Context, inst *FlowInstance) {
	o.Logger.InfoContext(ctx, "flow_completed",
		slog.String("flow", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnFlowFailed(ctx context.Context, inst *FlowInstance, err error) {
	o.Logger.ErrorContext(ctx, "flow_failed",
		slog.String("flow", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("crew_id", inst.FailedCrewID),
		slog.String("task_id", inst.FailedTaskID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnFlowCancelled(ctx context.Context, inst *FlowInstance) {
	o.Logger.InfoContext(ctx, "flow_cancelled",
		slog.String("flow", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnTaskDispatch(ctx context.Context, inst *FlowInstance, req TaskRequest) {
	o.Logger.DebugContext(ctx, "task_dispatch",
		slog.String("flow", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("crew_id", req.CrewID),
		slog.String("task_id", req.TaskID),
		slog.String("task", req.TaskName),
	)
}

func (o *LoggingObserver) OnTaskCompleted(ctx context.Context, inst *FlowInstance, res TaskResult, d time.Duration) {
	level := slog.LevelDebug
	if res.Status == TaskFailure {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "task_completed",
		slog.String("flow", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("crew_id", res.CrewID),
		slog.String("task_id", res.TaskID),
		slog.String("status", string(res.Status)),
		slog.Duration("duration", d),
		slog.Any("error", res.Err),
	)
}

func (o *LoggingObserver) OnListenerFired(ctx context.Context, inst *FlowInstance, listenerID string) {
	o.Logger.DebugContext(ctx, "listener_fired",
		slog.String("flow", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("listener_id", listenerID),
	)
}

func (o *LoggingObserver) OnRouterEvaluated(ctx context.Context, inst *FlowInstance, routerName string, result bool) {
	o.Logger.DebugContext(ctx, "router_evaluated",
		slog.String("flow", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.String("router", routerName),
		slog.Bool("result", result),
	)
}

// BasicMetrics collects simple counters and aggregate task durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	flowsStarted   atomic.Int64
	flowsCompleted atomic.Int64
	flowsFailed    atomic.Int64
	flowsCancelled atomic.Int64
	tasksCompleted atomic.Int64
	listenersFired atomic.Int64

	totalTaskDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FlowsStarted   int64
	FlowsCompleted int64
	FlowsFailed    int64
	FlowsCancelled int64
	RunningFlows   int64

	TasksCompleted  int64
	ListenersFired  int64
	AvgTaskDuration time.Duration
}

func (m *BasicMetrics) OnFlowStart(ctx context.Context, inst *FlowInstance) {
	m.flowsStarted.Add(1)
}

func (m *BasicMetrics) OnFlowCompleted(ctx context.Context, inst *FlowInstance) {
	m.flowsCompleted.Add(1)
}

func (m *BasicMetrics) OnFlowFailed(ctx context.Context, inst *FlowInstance, err error) {
	m.flowsFailed.Add(1)
}

func (m *BasicMetrics) OnFlowCancelled(ctx context.Context, inst *FlowInstance) {
	m.flowsCancelled.Add(1)
}

func (m *BasicMetrics) OnListenerFired(ctx context.Context, inst *FlowInstance, listenerID string) {
	m.listenersFired.Add(1)
}

func (m *BasicMetrics) OnTaskCompleted(ctx context.Context, inst *FlowInstance, res TaskResult, d time.Duration) {
	// Only count successful tasks for average duration.
	if res.Status == TaskSuccess {
		m.tasksCompleted.Add(1)
		m.totalTaskDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.flowsStarted.Load()
	completed := m.flowsCompleted.Load()
	failed := m.flowsFailed.Load()
	cancelled := m.flowsCancelled.Load()
	tasks := m.tasksCompleted.Load()
	totalNs := m.totalTaskDuration.Load()

	var avg time.Duration
	if tasks > 0 {
		avg = time.Duration(totalNs / tasks)
	}

	return BasicMetricsSnapshot{
		FlowsStarted:    started,
		FlowsCompleted:  completed,
		FlowsFailed:     failed,
		FlowsCancelled:  cancelled,
		RunningFlows:    started - completed - failed - cancelled,
		TasksCompleted:  tasks,
		ListenersFired:  m.listenersFired.Load(),
		AvgTaskDuration: avg,
	}
}
