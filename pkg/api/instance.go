package api

// Status represents the lifecycle state of a flow execution instance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// FlowInstance holds the result of one execution of a compiled
// FlowSpecification.
type FlowInstance struct {
	ID     string
	SpecID string
	Name   string
	Status Status

	// State is a snapshot of the flow state at instance end.
	State map[string]any

	// FailedCrewID/FailedTaskID identify the task whose failure moved the
	// instance to StatusFailed. Empty otherwise.
	FailedCrewID string
	FailedTaskID string

	Err error
}

// StateRecord is the durable-storage unit handed to the persistence
// collaborator, either at instance end or per edge when the edge carries
// the persist-after-execution flag.
type StateRecord struct {
	FlowInstanceID string `json:"flowInstanceId"`
	Variable       string `json:"variable"`
	Value          any    `json:"value"`
}
