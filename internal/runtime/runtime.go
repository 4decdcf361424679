// Package runtime executes compiled flow specifications: it schedules
// starting points, tracks join points across asynchronous task
// completions, evaluates routers, and drives each execution instance to a
// terminal status.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewflow/crewflow/internal/persistence"
	"github.com/crewflow/crewflow/internal/state"
	"github.com/crewflow/crewflow/pkg/api"
	"github.com/crewflow/crewflow/pkg/cel"
)

// ErrNoStartingPoints is returned when a specification has neither
// starting points nor unconditional triggers, so nothing can ever run.
var ErrNoStartingPoints = errors.New("specification has no starting points")

// Config describes how to construct a Runtime. Executor is required;
// the stores are optional and skipped when nil.
type Config struct {
	Executor  api.TaskExecutor
	Observer  api.Observer
	Instances persistence.InstanceStore
	States    persistence.StateStore
	Events    persistence.EventStore
}

// Runtime executes flow specifications. It is stateless across
// executions and safe for concurrent use; all per-execution bookkeeping
// lives in the execution started by Execute.
type Runtime struct {
	executor  api.TaskExecutor
	observer  api.Observer
	instances persistence.InstanceStore
	states    persistence.StateStore
	events    persistence.EventStore
}

// New creates a Runtime from cfg.
func New(cfg Config) (*Runtime, error) {
	if cfg.Executor == nil {
		return nil, errors.New("runtime: executor is required")
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &Runtime{
		executor:  cfg.Executor,
		observer:  obs,
		instances: cfg.Instances,
		states:    cfg.States,
		events:    cfg.Events,
	}, nil
}

// Execute runs one instance of spec to a terminal status and returns it.
// initial seeds the flow state.
//
// Cancelling ctx stops new dispatches; completions already in flight are
// still drained before the instance is reported as cancelled.
func (r *Runtime) Execute(ctx context.Context, spec *api.FlowSpecification, initial map[string]any) (*api.FlowInstance, error) {
	ex, err := newExecution(r, spec, initial)
	if err != nil {
		return nil, err
	}
	return ex.run(ctx)
}

// completion pairs a task result with its dispatch time so per-task
// durations survive concurrent runs of the same task id.
type completion struct {
	res        api.TaskResult
	dispatched time.Time
}

type listenerState struct {
	listener  api.Listener
	tracked   map[string]struct{}
	completed map[string]struct{}
	fired     bool
}

// ready reports whether the join condition is met. OR fires on any
// tracked completion; AND waits for the full set. NONE trackers carry a
// single id (see listenSets), so they fire on that one completion.
func (ls *listenerState) ready() bool {
	if ls.listener.ConditionType == api.LogicOr {
		return len(ls.completed) > 0
	}
	return len(ls.completed) == len(ls.tracked)
}

type routerState struct {
	router       api.Router
	sourceTaskID string
	fired        bool
}

type taskInfo struct {
	crewID   string
	crewName string
	name     string
}

type execution struct {
	rt   *Runtime
	spec *api.FlowSpecification
	inst *api.FlowInstance

	state   *state.Store
	results chan completion

	listeners []*listenerState
	// taskID -> listeners tracking that completion
	listenersBySource map[string][]*listenerState
	routers           []*routerState
	routersBySource   map[string][]*routerState

	tasks map[string]taskInfo

	outstanding int
	failed      bool
	cancelled   bool
}

func newExecution(rt *Runtime, spec *api.FlowSpecification, initial map[string]any) (*execution, error) {
	ex := &execution{
		rt:   rt,
		spec: spec,
		inst: &api.FlowInstance{
			ID:     uuid.NewString(),
			SpecID: spec.ID,
			Name:   spec.Name,
			Status: api.StatusPending,
		},
		state:             state.New(initial),
		results:           make(chan completion, 256),
		listenersBySource: make(map[string][]*listenerState),
		routersBySource:   make(map[string][]*routerState),
		tasks:             make(map[string]taskInfo),
	}

	ex.indexTasks()

	for _, l := range spec.Listeners {
		for _, tracked := range listenSets(l) {
			ls := &listenerState{
				listener:  l,
				tracked:   tracked,
				completed: make(map[string]struct{}),
			}
			ex.listeners = append(ex.listeners, ls)
			for id := range tracked {
				ex.listenersBySource[id] = append(ex.listenersBySource[id], ls)
			}
		}
	}

	for _, rtr := range spec.Routers {
		sourceID, ok := ex.routerSource(rtr)
		if !ok {
			continue
		}
		rs := &routerState{router: rtr, sourceTaskID: sourceID}
		ex.routers = append(ex.routers, rs)
		ex.routersBySource[sourceID] = append(ex.routersBySource[sourceID], rs)
	}

	if len(ex.initialTaskIDs()) == 0 {
		return nil, ErrNoStartingPoints
	}

	return ex, nil
}

// listenSets returns the tracking sets to instantiate for a listener. AND
// and OR join their full listen set in one tracker; a NONE listener reacts
// to each of its sources independently, so it gets one tracker per id and
// its targets run once per source completion.
func listenSets(l api.Listener) []map[string]struct{} {
	if l.ConditionType == api.LogicNone && len(l.ListenToTaskIDs) > 1 {
		sets := make([]map[string]struct{}, 0, len(l.ListenToTaskIDs))
		for _, id := range l.ListenToTaskIDs {
			sets = append(sets, map[string]struct{}{id: {}})
		}
		return sets
	}
	tracked := make(map[string]struct{}, len(l.ListenToTaskIDs))
	for _, id := range l.ListenToTaskIDs {
		tracked[id] = struct{}{}
	}
	return []map[string]struct{}{tracked}
}

// indexTasks builds the task id -> crew/name index from every compiled
// construct that mentions a task.
func (ex *execution) indexTasks() {
	for _, sp := range ex.spec.StartingPoints {
		ex.tasks[sp.TaskID] = taskInfo{crewID: sp.CrewID, crewName: sp.CrewName, name: sp.TaskName}
	}
	for _, a := range ex.spec.Actions {
		if _, ok := ex.tasks[a.TaskID]; !ok {
			ex.tasks[a.TaskID] = taskInfo{crewID: a.CrewID, crewName: a.CrewName, name: a.TaskName}
		}
	}
	for _, l := range ex.spec.Listeners {
		for _, t := range l.Tasks {
			if _, ok := ex.tasks[t.ID]; !ok {
				ex.tasks[t.ID] = taskInfo{crewID: l.CrewID, crewName: l.CrewName, name: t.Name}
			}
		}
	}
	for _, r := range ex.spec.Routers {
		for _, targets := range r.Routes {
			for _, t := range targets {
				if _, ok := ex.tasks[t.TaskID]; !ok {
					ex.tasks[t.TaskID] = taskInfo{crewID: t.CrewID}
				}
			}
		}
	}
}

// routerSource resolves the router's listenTo reference
// ("starting_point_<index>") to the task id of that starting point.
func (ex *execution) routerSource(r api.Router) (string, bool) {
	idx := 0
	if rest, ok := strings.CutPrefix(r.ListenTo, "starting_point_"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			idx = n
		}
	}
	if idx < 0 || idx >= len(ex.spec.StartingPoints) {
		return "", false
	}
	return ex.spec.StartingPoints[idx].TaskID, true
}

// initialTaskIDs returns the de-duplicated set of tasks scheduled at
// instance start: every starting point, plus actions that declare no wait
// dependency (their edge compiled no listener and their task is not gated
// behind a router route).
func (ex *execution) initialTaskIDs() []string {
	listenerIDs := make(map[string]struct{}, len(ex.spec.Listeners))
	for _, l := range ex.spec.Listeners {
		listenerIDs[l.ID] = struct{}{}
	}
	routed := make(map[string]struct{})
	for _, r := range ex.spec.Routers {
		for _, targets := range r.Routes {
			for _, t := range targets {
				routed[t.TaskID] = struct{}{}
			}
		}
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(taskID string) {
		if _, ok := seen[taskID]; ok {
			return
		}
		seen[taskID] = struct{}{}
		out = append(out, taskID)
	}

	for _, sp := range ex.spec.StartingPoints {
		add(sp.TaskID)
	}
	for _, a := range ex.spec.Actions {
		if _, covered := listenerIDs[a.ID]; covered {
			continue
		}
		if _, gated := routed[a.TaskID]; gated {
			continue
		}
		add(a.TaskID)
	}
	return out
}

func (ex *execution) run(ctx context.Context) (*api.FlowInstance, error) {
	rt := ex.rt
	ex.inst.Status = api.StatusRunning

	rt.observer.OnFlowStart(ctx, ex.inst)
	ex.appendEvent(ctx, api.FlowEvent{
		Type:   api.EventFlowStarted,
		SpecID: ex.spec.ID,
	})
	if rt.instances != nil {
		if err := rt.instances.SaveInstance(ex.inst); err != nil {
			ex.inst.Status = api.StatusFailed
			ex.inst.Err = err
			rt.observer.OnFlowFailed(ctx, ex.inst, err)
			return ex.inst, err
		}
	}

	for _, taskID := range ex.initialTaskIDs() {
		ex.dispatch(ctx, taskID)
	}

	for ex.outstanding > 0 {
		if ex.cancelled {
			// Drain in-flight completions without watching ctx again.
			ex.handleCompletion(ctx, <-ex.results)
			continue
		}
		select {
		case <-ctx.Done():
			ex.cancelled = true
		case c := <-ex.results:
			ex.handleCompletion(ctx, c)
		}
	}

	return ex.finish(ctx)
}

// dispatch snapshots the state, hands the task to the executor, and
// counts it as outstanding. Dispatch refusals are recorded as task
// failures so the run reaches a terminal status.
func (ex *execution) dispatch(ctx context.Context, taskID string) {
	if ex.cancelled || ex.failed {
		return
	}

	info := ex.tasks[taskID]
	req := api.TaskRequest{
		CrewID:   info.crewID,
		TaskID:   taskID,
		TaskName: info.name,
		State:    ex.state.Snapshot(),
	}

	ex.rt.observer.OnTaskDispatch(ctx, ex.inst, req)
	ex.appendEvent(ctx, api.FlowEvent{
		Type:   api.EventTaskDispatched,
		CrewID: req.CrewID,
		TaskID: req.TaskID,
	})

	dispatched := time.Now()
	err := ex.rt.executor.Dispatch(ctx, req, func(res api.TaskResult) {
		ex.results <- completion{res: res, dispatched: dispatched}
	})
	if err != nil {
		ex.failTask(ctx, api.TaskResult{
			CrewID: req.CrewID,
			TaskID: req.TaskID,
			Status: api.TaskFailure,
			Err:    fmt.Errorf("dispatch %s: %w", taskID, err),
		})
		return
	}
	ex.outstanding++
}

func (ex *execution) handleCompletion(ctx context.Context, c completion) {
	ex.outstanding--

	res := c.res
	ex.rt.observer.OnTaskCompleted(ctx, ex.inst, res, time.Since(c.dispatched))

	if res.Status != api.TaskSuccess {
		ex.failTask(ctx, res)
		return
	}

	ex.appendEvent(ctx, api.FlowEvent{
		Type:   api.EventTaskCompleted,
		CrewID: res.CrewID,
		TaskID: res.TaskID,
	})

	if ex.failed || ex.cancelled {
		return
	}

	for _, ls := range ex.listenersBySource[res.TaskID] {
		ex.advanceListener(ctx, ls, res)
	}
	for _, rs := range ex.routersBySource[res.TaskID] {
		ex.evaluateRouter(ctx, rs, res)
	}
}

// advanceListener records the completion and fires the listener at most
// once when its join condition is met.
func (ex *execution) advanceListener(ctx context.Context, ls *listenerState, res api.TaskResult) {
	ls.completed[res.TaskID] = struct{}{}
	if ls.fired || !ls.ready() {
		return
	}
	ls.fired = true

	l := ls.listener
	if records, applied := ex.state.Apply(ex.inst.ID, l.StateOperations, res.Output); applied && l.PersistAfterExecution {
		ex.persistRecords(ctx, records)
	}

	ex.rt.observer.OnListenerFired(ctx, ex.inst, l.ID)
	ex.appendEvent(ctx, api.FlowEvent{
		Type:   api.EventListenerFired,
		CrewID: l.CrewID,
		TaskID: res.TaskID,
		Detail: l.ID,
	})

	for _, t := range l.Tasks {
		ex.dispatch(ctx, t.ID)
	}
}

// evaluateRouter evaluates the router condition against flow state merged
// with the completed task's parsed output. Evaluation errors count as
// false: the branch ends quietly.
func (ex *execution) evaluateRouter(ctx context.Context, rs *routerState, res api.TaskResult) {
	if rs.fired {
		return
	}
	rs.fired = true

	evalCtx := ex.state.Snapshot()
	for k, v := range state.ParseTaskOutput(res.Output) {
		evalCtx[k] = v
	}

	result, err := cel.EvaluateExpression(rs.router.Condition, evalCtx)
	if err != nil {
		result = false
	}

	ex.rt.observer.OnRouterEvaluated(ctx, ex.inst, rs.router.Name, result)
	ex.appendEvent(ctx, api.FlowEvent{
		Type:   api.EventRouterEvaluated,
		TaskID: res.TaskID,
		Detail: fmt.Sprintf("%s=%t", rs.router.Name, result),
	})

	if !result {
		return
	}
	for _, target := range rs.router.Routes[api.DefaultRoute] {
		ex.dispatch(ctx, target.TaskID)
	}
}

// failTask records the first task failure; the run keeps draining
// in-flight completions but dispatches nothing new.
func (ex *execution) failTask(ctx context.Context, res api.TaskResult) {
	ex.appendEvent(ctx, api.FlowEvent{
		Type:   api.EventTaskFailed,
		CrewID: res.CrewID,
		TaskID: res.TaskID,
		Detail: errDetail(res.Err),
	})

	if ex.failed {
		return
	}
	ex.failed = true
	ex.inst.FailedCrewID = res.CrewID
	ex.inst.FailedTaskID = res.TaskID
	if res.Err != nil {
		ex.inst.Err = res.Err
	} else {
		ex.inst.Err = fmt.Errorf("task %s failed", res.TaskID)
	}
}

func (ex *execution) finish(ctx context.Context) (*api.FlowInstance, error) {
	rt := ex.rt
	ex.inst.State = ex.state.Snapshot()

	switch {
	case ex.failed:
		ex.inst.Status = api.StatusFailed
	case ex.cancelled:
		ex.inst.Status = api.StatusCancelled
		ex.inst.Err = context.Cause(ctx)
	default:
		ex.inst.Status = api.StatusCompleted
	}

	// The final snapshot is persisted for every terminal status; a failed
	// or cancelled instance's state is what an operator inspects.
	if rt.states != nil {
		records := make([]api.StateRecord, 0, len(ex.inst.State))
		for k, v := range ex.inst.State {
			records = append(records, api.StateRecord{
				FlowInstanceID: ex.inst.ID,
				Variable:       k,
				Value:          v,
			})
		}
		ex.persistRecords(ctx, records)
	}

	if rt.instances != nil {
		_ = rt.instances.UpdateInstance(ex.inst)
	}

	switch ex.inst.Status {
	case api.StatusFailed:
		rt.observer.OnFlowFailed(ctx, ex.inst, ex.inst.Err)
		ex.appendEvent(ctx, api.FlowEvent{Type: api.EventFlowFailed, Detail: errDetail(ex.inst.Err)})
		return ex.inst, ex.inst.Err
	case api.StatusCancelled:
		rt.observer.OnFlowCancelled(ctx, ex.inst)
		ex.appendEvent(ctx, api.FlowEvent{Type: api.EventFlowCancelled})
		return ex.inst, ex.inst.Err
	default:
		rt.observer.OnFlowCompleted(ctx, ex.inst)
		ex.appendEvent(ctx, api.FlowEvent{Type: api.EventFlowCompleted})
		return ex.inst, nil
	}
}

func (ex *execution) persistRecords(ctx context.Context, records []api.StateRecord) {
	if ex.rt.states == nil || len(records) == 0 {
		return
	}
	if err := ex.rt.states.SaveStateRecords(records); err != nil {
		return
	}
	ex.appendEvent(ctx, api.FlowEvent{
		Type:   api.EventStatePersisted,
		Detail: strconv.Itoa(len(records)) + " records",
	})
}

// appendEvent writes to the event store when one is configured. Event
// write failures never affect the execution outcome.
func (ex *execution) appendEvent(ctx context.Context, ev api.FlowEvent) {
	if ex.rt.events == nil {
		return
	}
	ev.InstanceID = ex.inst.ID
	ev.At = time.Now()
	if ev.SpecID == "" {
		ev.SpecID = ex.spec.ID
	}
	_ = ex.rt.events.AppendEvent(ctx, ev)
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
