// Package persistence defines the storage contracts for compiled flow
// specifications, execution instances, persisted state writes, and
// execution events, with in-memory and SQLite implementations.
package persistence

import (
	"context"
	"errors"

	"github.com/crewflow/crewflow/pkg/api"
)

var (
	// ErrSpecNotFound is returned when a flow specification is not found.
	ErrSpecNotFound = errors.New("flow specification not found")

	// ErrInstanceNotFound is returned when a flow instance is not found.
	ErrInstanceNotFound = errors.New("flow instance not found")
)

// SpecStore handles storage of compiled flow specifications.
type SpecStore interface {
	SaveSpec(spec *api.FlowSpecification) error
	GetSpec(id string) (*api.FlowSpecification, error)
	ListSpecs() ([]*api.FlowSpecification, error)
}

// InstanceFilter is used to select instances from the store.
// Empty string / zero status mean "no filter" for that field.
type InstanceFilter struct {
	SpecID string
	Status api.Status
}

// InstanceStore handles storage of flow execution instances.
type InstanceStore interface {
	SaveInstance(inst *api.FlowInstance) error
	UpdateInstance(inst *api.FlowInstance) error
	GetInstance(id string) (*api.FlowInstance, error)
	ListInstances(filter InstanceFilter) ([]*api.FlowInstance, error)
}

// StateStore persists individual flow state writes. A write for an
// existing (instance, variable) pair replaces the previous value.
type StateStore interface {
	SaveStateRecords(records []api.StateRecord) error
	// GetState reconstructs the persisted state of an instance as a map.
	GetState(instanceID string) (map[string]any, error)
}

// EventStore records the execution event trail of flow instances.
// Appending takes a context because event sinks are often remote.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.FlowEvent) error
	ListEvents(ctx context.Context, instanceID string) ([]api.FlowEvent, error)
}
