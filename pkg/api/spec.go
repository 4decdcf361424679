package api

// TaskRef is a resolved task reference inside a compiled construct.
type TaskRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RouterConfig is an optional routing annotation attached to a Listener.
// The compiler currently emits standalone Routers instead, but the field is
// part of the wire contract and is preserved on round trips.
type RouterConfig struct {
	Condition string `json:"condition,omitempty"`
}

// Listener is a compiled join point: it waits on one or more source-task
// completions before triggering its resolved target tasks.
//
// Listeners are compiled only for edges with a non-empty listen set and a
// logic type other than ROUTER. Each qualifying edge yields its own
// Listener, even when several edges target the same node; ID is the id of
// the originating edge.
type Listener struct {
	ID              string    `json:"id"`
	CrewID          string    `json:"crewId"`
	CrewName        string    `json:"crewName"`
	ListenToTaskIDs []string  `json:"listenToTaskIds"`
	Tasks           []TaskRef `json:"tasks"`
	ConditionType   LogicType `json:"conditionType"`

	StateOperations       *StateOperations `json:"stateOperations,omitempty"`
	PersistAfterExecution bool             `json:"persistAfterExecution,omitempty"`
	RouterConfig          *RouterConfig    `json:"routerConfig,omitempty"`
}

// Action is a compiled unconditional trigger, one per (edge, target task)
// pair. ID is the id of the originating edge.
type Action struct {
	ID       string `json:"id"`
	CrewID   string `json:"crewId"`
	CrewName string `json:"crewName"`
	TaskID   string `json:"taskId"`
	TaskName string `json:"taskName"`
}

// StartingPoint is a task with no upstream dependency, scheduled at
// instance start.
type StartingPoint struct {
	CrewID       string `json:"crewId"`
	CrewName     string `json:"crewName"`
	TaskID       string `json:"taskId"`
	TaskName     string `json:"taskName"`
	IsStartPoint bool   `json:"isStartPoint"`
}

// RouteTarget identifies one task triggered by a router route.
type RouteTarget struct {
	TaskID string `json:"taskId"`
	CrewID string `json:"crewId"`
}

// Router is a compiled conditional gate. ListenTo references a starting
// point by position ("starting_point_<index>"). When that starting point
// completes, Condition is evaluated against flow state merged with the
// completed task's output; a true result triggers the tasks under the
// "default" route, a false result ends the branch.
type Router struct {
	Name           string                   `json:"name"`
	ListenTo       string                   `json:"listenTo"`
	ConditionField string                   `json:"conditionField"`
	Routes         map[string][]RouteTarget `json:"routes"`
	Condition      string                   `json:"condition"`
}

// DefaultRoute is the single route label populated by the compiler.
const DefaultRoute = "default"

// FlowSpecification is the complete, serializable compilation output and
// the wire contract between compiler and runtime. It is immutable once
// produced and consumed exactly once per execution instance.
//
// The routers key is omitted entirely from the JSON document when no
// routers were compiled.
type FlowSpecification struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Listeners      []Listener      `json:"listeners"`
	Actions        []Action        `json:"actions"`
	StartingPoints []StartingPoint `json:"startingPoints"`
	Routers        []Router        `json:"routers,omitempty"`
}

// SpecType is the Type value stamped on compiled specifications.
const SpecType = "flow"
