package api

// LogicType describes how an edge joins or routes the completions it
// listens to.
type LogicType string

const (
	// LogicNone fires on its single tracked completion.
	LogicNone LogicType = "NONE"
	// LogicAnd fires once all tracked completions have been observed.
	LogicAnd LogicType = "AND"
	// LogicOr fires on the first tracked completion.
	LogicOr LogicType = "OR"
	// LogicRouter marks a conditional gate; such edges compile to a
	// Router rather than a Listener.
	LogicRouter LogicType = "ROUTER"
)

// Task is an atomic unit of work belonging to exactly one Node.
// Tasks are immutable once authored.
type Task struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Node is an authored workflow unit owning an ordered set of Tasks.
// CrewName doubles as the default display name for compiled constructs.
type Node struct {
	ID       string `json:"id"`
	CrewID   string `json:"crewId,omitempty"`
	CrewName string `json:"crewName,omitempty"`
	Tasks    []Task `json:"tasks"`
}

// Condition is one clause of a flat boolean chain. Connector joins this
// clause with the previous one and must be empty on the first clause.
type Condition struct {
	Field     string `json:"field"`
	Operator  string `json:"operator"`
	Value     string `json:"value"`
	Connector string `json:"connector,omitempty"`
}

// Condition operators understood by the condition language.
const (
	OpEqual        = "="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpContains     = "contains"
	OpStartsWith   = "starts_with"
	OpEndsWith     = "ends_with"
)

// Connector values for Condition.
const (
	ConnectorAnd = "AND"
	ConnectorOr  = "OR"
)

// StateWrite sets a flow-state variable to either a literal Value or the
// result of evaluating Expression. Expression wins when both are set.
type StateWrite struct {
	Variable   string `json:"variable"`
	Value      string `json:"value,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// StateOperations describes the flow-state side effects carried by an edge.
// Reads populate the evaluation context, Condition (a condition-language
// expression) guards the writes, and Writes execute in order.
type StateOperations struct {
	Reads     []string     `json:"reads,omitempty"`
	Writes    []StateWrite `json:"writes,omitempty"`
	Condition string       `json:"condition,omitempty"`
}

// EdgeData carries the join/route/state semantics of an Edge. Absent
// optional fields mean "no-op for that concern".
type EdgeData struct {
	// ListenToTaskIDs is the subset of the source node's tasks whose
	// completion arms this edge.
	ListenToTaskIDs []string `json:"listenToTaskIds,omitempty"`

	// TargetTaskIDs selects which of the target node's tasks to trigger.
	// Empty means all of the target node's tasks.
	TargetTaskIDs []string `json:"targetTaskIds,omitempty"`

	LogicType       LogicType        `json:"logicType,omitempty"`
	RouterCondition string           `json:"routerCondition,omitempty"`
	StateOperations *StateOperations `json:"stateOperations,omitempty"`
	Description     string           `json:"description,omitempty"`

	// PersistAfterExecution flags this edge's state writes for durable
	// storage beyond the single run.
	PersistAfterExecution bool `json:"persistAfterExecution,omitempty"`
}

// Edge is a directed transition between two Nodes.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Data   EdgeData `json:"data"`
}
