package compiler

import "github.com/crewflow/crewflow/pkg/api"

// graphIndex is a passive index over the authored graph. It performs no
// validation: cycles, dangling references and duplicate ids are tolerated
// here and resolved leniently during compilation.
type graphIndex struct {
	nodes    map[string]int // node id -> index into ordered
	ordered  []api.Node
	incoming map[string][]api.Edge // target node id -> edges, input order
}

func newGraphIndex(nodes []api.Node, edges []api.Edge) *graphIndex {
	g := &graphIndex{
		nodes:    make(map[string]int, len(nodes)),
		ordered:  nodes,
		incoming: make(map[string][]api.Edge),
	}
	for i, n := range nodes {
		if _, dup := g.nodes[n.ID]; !dup {
			g.nodes[n.ID] = i
		}
	}
	for _, e := range edges {
		g.incoming[e.Target] = append(g.incoming[e.Target], e)
	}
	return g
}

func (g *graphIndex) node(nodeID string) (api.Node, bool) {
	i, ok := g.nodes[nodeID]
	if !ok {
		return api.Node{}, false
	}
	return g.ordered[i], true
}

func (g *graphIndex) incomingEdges(nodeID string) []api.Edge {
	return g.incoming[nodeID]
}

// isStartingNode reports whether the node has no incoming edges of any
// kind and owns at least one task.
func (g *graphIndex) isStartingNode(nodeID string) bool {
	n, ok := g.node(nodeID)
	if !ok {
		return false
	}
	return len(g.incoming[nodeID]) == 0 && len(n.Tasks) > 0
}

// resolveTask looks a task id up on the given node. A miss is not an
// error; callers skip the reference and count it as dangling.
func (g *graphIndex) resolveTask(nodeID, taskID string) (api.Task, bool) {
	n, ok := g.node(nodeID)
	if !ok {
		return api.Task{}, false
	}
	for _, t := range n.Tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return api.Task{}, false
}
