package persistence

import (
	"context"
	"sync"

	"github.com/crewflow/crewflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of SpecStore,
// InstanceStore, StateStore and EventStore backed by maps.
type InMemoryStore struct {
	mu        sync.RWMutex
	specs     map[string]*api.FlowSpecification
	instances map[string]*api.FlowInstance
	state     map[string]map[string]any
	events    map[string][]api.FlowEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		specs:     make(map[string]*api.FlowSpecification),
		instances: make(map[string]*api.FlowInstance),
		state:     make(map[string]map[string]any),
		events:    make(map[string][]api.FlowEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ SpecStore = (*InMemoryStore)(nil)

var _ InstanceStore = (*InMemoryStore)(nil)

var _ StateStore = (*InMemoryStore)(nil)

var _ EventStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveSpec(spec *api.FlowSpecification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.specs[spec.ID] = spec
	return nil
}

func (s *InMemoryStore) GetSpec(id string) (*api.FlowSpecification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spec, ok := s.specs[id]
	if !ok {
		return nil, ErrSpecNotFound
	}

	return spec, nil
}

func (s *InMemoryStore) ListSpecs() ([]*api.FlowSpecification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.FlowSpecification, 0, len(s.specs))
	for _, spec := range s.specs {
		out = append(out, spec)
	}
	return out, nil
}

func (s *InMemoryStore) SaveInstance(inst *api.FlowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = inst
	return nil
}

func (s *InMemoryStore) UpdateInstance(inst *api.FlowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return ErrInstanceNotFound
	}

	s.instances[inst.ID] = inst
	return nil
}

func (s *InMemoryStore) GetInstance(id string) (*api.FlowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}

	return inst, nil
}

func (s *InMemoryStore) ListInstances(filter InstanceFilter) ([]*api.FlowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.FlowInstance
	for _, inst := range s.instances {
		if filter.SpecID != "" && inst.SpecID != filter.SpecID {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (s *InMemoryStore) SaveStateRecords(records []api.StateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		m, ok := s.state[rec.FlowInstanceID]
		if !ok {
			m = make(map[string]any)
			s.state[rec.FlowInstanceID] = m
		}
		m[rec.Variable] = rec.Value
	}
	return nil
}

func (s *InMemoryStore) GetState(instanceID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.state[instanceID]))
	for k, v := range s.state[instanceID] {
		out[k] = v
	}
	return out, nil
}

func (s *InMemoryStore) AppendEvent(_ context.Context, ev api.FlowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.InstanceID] = append(s.events[ev.InstanceID], ev)
	return nil
}

func (s *InMemoryStore) ListEvents(_ context.Context, instanceID string) ([]api.FlowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[instanceID]
	out := make([]api.FlowEvent, len(events))
	copy(out, events)
	return out, nil
}
