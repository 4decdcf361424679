// Package compiler transforms an authored node/edge graph into an
// executable flow specification.
//
// Compilation is lenient by design: structurally incomplete graphs never
// fail. Unresolved task references are excluded from the output and
// surfaced in aggregate through the Report, so the authoring surface can
// keep a half-built flow editable and runnable.
package compiler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crewflow/crewflow/pkg/api"
	"github.com/crewflow/crewflow/pkg/cel"
)

// Report carries the aggregate compile warnings the lenient policy would
// otherwise swallow. A report with zero warnings means every reference in
// the graph resolved.
type Report struct {
	// DanglingTaskRefs counts task ids that did not resolve against their
	// referenced node and were excluded from the output.
	DanglingTaskRefs int

	// NoStartingPoints is set when the compiled specification has no entry
	// tasks. The runtime cannot begin execution of such a specification;
	// callers must surface this rather than treat compilation as a silent
	// success.
	NoStartingPoints bool

	Warnings []string
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Compile transforms the graph into a FlowSpecification. It is a pure
// function of its inputs aside from the timestamp-derived specification
// id, and it never fails: malformed constructs degrade to absence in the
// output, tallied in the returned Report.
func Compile(nodes []api.Node, edges []api.Edge, flowName string) (*api.FlowSpecification, *Report) {
	g := newGraphIndex(nodes, edges)
	report := &Report{}

	spec := &api.FlowSpecification{
		ID:             newSpecID(),
		Name:           flowName,
		Type:           api.SpecType,
		Listeners:      []api.Listener{},
		Actions:        []api.Action{},
		StartingPoints: []api.StartingPoint{},
	}

	compileListeners(g, spec, report)
	compileStartingPoints(g, spec)
	compileActions(g, edges, spec, report)
	compileRouters(g, edges, spec, report)

	if report.DanglingTaskRefs > 0 {
		report.warnf("%d dangling task references ignored", report.DanglingTaskRefs)
	}
	if len(spec.StartingPoints) == 0 {
		report.NoStartingPoints = true
		report.warnf("flow %q compiled with no starting points; execution cannot begin", flowName)
	}

	return spec, report
}

// compileListeners emits one Listener per (node, qualifying incoming edge)
// pair. Two edges into the same node stay independent join points: they may
// carry different logic types over different source-task subsets, so they
// are never merged.
func compileListeners(g *graphIndex, spec *api.FlowSpecification, report *Report) {
	for _, n := range g.ordered {
		if len(n.Tasks) == 0 {
			continue
		}
		for _, e := range g.incomingEdges(n.ID) {
			if e.Data.LogicType == api.LogicRouter {
				continue
			}
			if len(e.Data.ListenToTaskIDs) == 0 {
				continue
			}

			listenIDs := resolveListenIDs(g, e, report)
			if len(listenIDs) == 0 {
				continue
			}

			tasks := resolveTargets(g, n, e.Data.TargetTaskIDs, report)
			if len(tasks) == 0 {
				continue
			}

			conditionType := e.Data.LogicType
			if conditionType == "" {
				conditionType = api.LogicNone
			}

			spec.Listeners = append(spec.Listeners, api.Listener{
				ID:                    e.ID,
				CrewID:                crewID(n),
				CrewName:              crewName(n),
				ListenToTaskIDs:       listenIDs,
				Tasks:                 tasks,
				ConditionType:         conditionType,
				StateOperations:       e.Data.StateOperations,
				PersistAfterExecution: e.Data.PersistAfterExecution,
			})
		}
	}
}

func compileStartingPoints(g *graphIndex, spec *api.FlowSpecification) {
	for _, n := range g.ordered {
		if !g.isStartingNode(n.ID) {
			continue
		}
		for _, t := range n.Tasks {
			spec.StartingPoints = append(spec.StartingPoints, api.StartingPoint{
				CrewID:       crewID(n),
				CrewName:     crewName(n),
				TaskID:       t.ID,
				TaskName:     t.Name,
				IsStartPoint: true,
			})
		}
	}
}

// compileActions emits one Action per (edge, resolvable target task) pair.
// Actions and Listeners intentionally overlap: an edge with both a listen
// set and a target set contributes to both lists, since Actions capture
// "trigger" while Listeners capture "wait-for".
func compileActions(g *graphIndex, edges []api.Edge, spec *api.FlowSpecification, report *Report) {
	for _, e := range edges {
		if len(e.Data.TargetTaskIDs) == 0 {
			continue
		}
		n, ok := g.node(e.Target)
		if !ok {
			report.DanglingTaskRefs += len(e.Data.TargetTaskIDs)
			continue
		}
		for _, id := range e.Data.TargetTaskIDs {
			t, ok := g.resolveTask(n.ID, id)
			if !ok {
				report.DanglingTaskRefs++
				continue
			}
			spec.Actions = append(spec.Actions, api.Action{
				ID:       e.ID,
				CrewID:   crewID(n),
				CrewName: crewName(n),
				TaskID:   t.ID,
				TaskName: t.Name,
			})
		}
	}
}

func compileRouters(g *graphIndex, edges []api.Edge, spec *api.FlowSpecification, report *Report) {
	for _, e := range edges {
		if e.Data.LogicType != api.LogicRouter {
			continue
		}
		if e.Data.RouterCondition == "" || len(e.Data.ListenToTaskIDs) == 0 {
			continue
		}
		n, ok := g.node(e.Target)
		if !ok {
			continue
		}
		targets := resolveTargets(g, n, e.Data.TargetTaskIDs, report)
		if len(targets) == 0 {
			continue
		}

		routes := make([]api.RouteTarget, 0, len(targets))
		for _, t := range targets {
			routes = append(routes, api.RouteTarget{TaskID: t.ID, CrewID: crewID(n)})
		}

		// Explicit fallback, not an error: a listen id with no matching
		// starting point resolves to index 0.
		index := 0
		for i, sp := range spec.StartingPoints {
			if sp.TaskID == e.Data.ListenToTaskIDs[0] {
				index = i
				break
			}
		}

		conditionField := "success"
		if conds := cel.ToConditions(e.Data.RouterCondition); len(conds) > 0 {
			conditionField = conds[0].Field
		}

		spec.Routers = append(spec.Routers, api.Router{
			Name:           fmt.Sprintf("router_%d", len(spec.Routers)),
			ListenTo:       fmt.Sprintf("starting_point_%d", index),
			ConditionField: conditionField,
			Routes:         map[string][]api.RouteTarget{api.DefaultRoute: routes},
			Condition:      e.Data.RouterCondition,
		})
	}
}

func resolveListenIDs(g *graphIndex, e api.Edge, report *Report) []string {
	out := make([]string, 0, len(e.Data.ListenToTaskIDs))
	for _, id := range e.Data.ListenToTaskIDs {
		if _, ok := g.resolveTask(e.Source, id); !ok {
			report.DanglingTaskRefs++
			continue
		}
		out = append(out, id)
	}
	return out
}

// resolveTargets intersects the edge's target selection with the node's
// tasks, or selects all of the node's tasks when no selection was made.
func resolveTargets(g *graphIndex, n api.Node, targetIDs []string, report *Report) []api.TaskRef {
	if len(targetIDs) == 0 {
		out := make([]api.TaskRef, 0, len(n.Tasks))
		for _, t := range n.Tasks {
			out = append(out, api.TaskRef{ID: t.ID, Name: t.Name})
		}
		return out
	}

	var out []api.TaskRef
	for _, id := range targetIDs {
		t, ok := g.resolveTask(n.ID, id)
		if !ok {
			report.DanglingTaskRefs++
			continue
		}
		out = append(out, api.TaskRef{ID: t.ID, Name: t.Name})
	}
	return out
}

func crewID(n api.Node) string {
	if n.CrewID != "" {
		return n.CrewID
	}
	return n.ID
}

func crewName(n api.Node) string {
	if n.CrewName != "" {
		return n.CrewName
	}
	return n.ID
}

func newSpecID() string {
	return fmt.Sprintf("flow-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
