package api

import "time"

// EventType identifies a flow execution history event.
type EventType string

const (
	EventFlowStarted   EventType = "flow.started"
	EventFlowCompleted EventType = "flow.completed"
	EventFlowFailed    EventType = "flow.failed"
	EventFlowCancelled EventType = "flow.cancelled"

	EventTaskDispatched EventType = "task.dispatched"
	EventTaskCompleted  EventType = "task.completed"
	EventTaskFailed     EventType = "task.failed"

	EventListenerFired   EventType = "listener.fired"
	EventRouterEvaluated EventType = "router.evaluated"
	EventStatePersisted  EventType = "state.persisted"
)

// FlowEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type FlowEvent struct {
	InstanceID string
	At         time.Time
	Type       EventType

	// Optional context.
	SpecID string
	CrewID string
	TaskID string

	// Small, human-oriented details (e.g. listener id, error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}
