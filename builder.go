package crewflow

import (
	"fmt"

	"github.com/crewflow/crewflow/pkg/api"
)

// GraphBuilder provides a fluent API for defining workflow graphs:
//
//	graph := crewflow.NewGraph("research").
//	    Crew("research", "Research Crew",
//	        crewflow.Task{ID: "gather", Name: "Gather sources"}).
//	    Crew("writing", "Writing Crew",
//	        crewflow.Task{ID: "draft", Name: "Write draft"}).
//	    Link("research", "writing")
//
//	spec, report := graph.Compile()
type GraphBuilder struct {
	name       string
	nodes      []api.Node
	edges      []api.Edge
	nextEdgeID int
}

// NewGraph creates a new graph builder for a flow with the given name.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{name: name}
}

// Name returns the flow name.
func (b *GraphBuilder) Name() string {
	return b.name
}

// Crew adds a crew node with the given tasks.
func (b *GraphBuilder) Crew(id, name string, tasks ...Task) *GraphBuilder {
	if id == "" {
		panic("crewflow: crew id must not be empty")
	}
	b.nodes = append(b.nodes, api.Node{
		ID:       id,
		CrewID:   id,
		CrewName: name,
		Tasks:    tasks,
	})
	return b
}

// EdgeOption customizes a single edge added via Link.
type EdgeOption func(*api.EdgeData)

// WithLogic sets the edge's join logic (AND, OR).
func WithLogic(logic LogicType) EdgeOption {
	return func(d *api.EdgeData) { d.LogicType = logic }
}

// WithListenTo restricts the edge to the given source-task ids.
func WithListenTo(taskIDs ...string) EdgeOption {
	return func(d *api.EdgeData) { d.ListenToTaskIDs = taskIDs }
}

// WithTargets restricts the edge to the given target-task ids. Without it
// the edge triggers all tasks of the target crew.
func WithTargets(taskIDs ...string) EdgeOption {
	return func(d *api.EdgeData) { d.TargetTaskIDs = taskIDs }
}

// WithStateOperations attaches state reads/writes and an optional guard
// condition to the edge traversal.
func WithStateOperations(ops StateOperations) EdgeOption {
	return func(d *api.EdgeData) { d.StateOperations = &ops }
}

// WithPersist marks the edge's state writes for durable storage right
// after the traversal instead of at instance end.
func WithPersist() EdgeOption {
	return func(d *api.EdgeData) { d.PersistAfterExecution = true }
}

// WithDescription attaches a human-readable description to the edge.
func WithDescription(desc string) EdgeOption {
	return func(d *api.EdgeData) { d.Description = desc }
}

// Link connects two crews. By default the edge listens to every task of
// the source crew and triggers every task of the target crew.
func (b *GraphBuilder) Link(source, target string, opts ...EdgeOption) *GraphBuilder {
	data := api.EdgeData{LogicType: api.LogicNone}
	for _, opt := range opts {
		opt(&data)
	}
	b.addEdge(source, target, data)
	return b
}

// Route connects two crews through a conditional router. The condition is
// written in the flow condition language, e.g.
//
//	state["verdict"] == "approved" and state["score"] > 0.8
//
// Targets are triggered only when the condition evaluates to true against
// the flow state merged with the source task's output.
func (b *GraphBuilder) Route(source, target, condition string, opts ...EdgeOption) *GraphBuilder {
	data := api.EdgeData{
		LogicType:       api.LogicRouter,
		RouterCondition: condition,
	}
	for _, opt := range opts {
		opt(&data)
	}
	b.addEdge(source, target, data)
	return b
}

func (b *GraphBuilder) addEdge(source, target string, data api.EdgeData) {
	if source == "" || target == "" {
		panic("crewflow: edge endpoints must not be empty")
	}
	b.nextEdgeID++
	b.edges = append(b.edges, api.Edge{
		ID:     fmt.Sprintf("edge_%d", b.nextEdgeID),
		Source: source,
		Target: target,
		Data:   data,
	})
}

// Graph returns the accumulated nodes and edges, with each edge's listen
// and target selections defaulted to the full task set of its endpoint
// crews when left unset. Typically used when interacting with lower-level
// APIs.
func (b *GraphBuilder) Graph() ([]Node, []Edge) {
	tasksOf := make(map[string][]string, len(b.nodes))
	for _, n := range b.nodes {
		ids := make([]string, 0, len(n.Tasks))
		for _, t := range n.Tasks {
			ids = append(ids, t.ID)
		}
		tasksOf[n.ID] = ids
	}

	edges := make([]api.Edge, len(b.edges))
	copy(edges, b.edges)
	for i := range edges {
		if len(edges[i].Data.ListenToTaskIDs) == 0 {
			edges[i].Data.ListenToTaskIDs = tasksOf[edges[i].Source]
		}
		if len(edges[i].Data.TargetTaskIDs) == 0 {
			edges[i].Data.TargetTaskIDs = tasksOf[edges[i].Target]
		}
	}
	return b.nodes, edges
}

// Compile translates the accumulated graph into a flow specification.
func (b *GraphBuilder) Compile() (*FlowSpecification, *CompileReport) {
	nodes, edges := b.Graph()
	return Compile(nodes, edges, b.name)
}
