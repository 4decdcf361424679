package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewflow/crewflow/pkg/api"
)

func TestInMemoryStore_Specs(t *testing.T) {
	s := NewInMemoryStore()

	if _, err := s.GetSpec("missing"); !errors.Is(err, ErrSpecNotFound) {
		t.Fatalf("GetSpec(missing) err = %v, want ErrSpecNotFound", err)
	}

	spec := &api.FlowSpecification{ID: "flow-1", Name: "demo", Type: api.SpecType}
	if err := s.SaveSpec(spec); err != nil {
		t.Fatalf("SaveSpec: %v", err)
	}

	got, err := s.GetSpec("flow-1")
	if err != nil {
		t.Fatalf("GetSpec: %v", err)
	}
	if got.Name != "demo" {
		t.Fatalf("spec name = %q", got.Name)
	}

	all, err := s.ListSpecs()
	if err != nil {
		t.Fatalf("ListSpecs: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListSpecs = %d entries, want 1", len(all))
	}
}

func TestInMemoryStore_Instances(t *testing.T) {
	s := NewInMemoryStore()

	if err := s.UpdateInstance(&api.FlowInstance{ID: "ghost"}); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("UpdateInstance(ghost) err = %v, want ErrInstanceNotFound", err)
	}

	inst := &api.FlowInstance{ID: "i1", SpecID: "flow-1", Name: "demo", Status: api.StatusRunning}
	if err := s.SaveInstance(inst); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}

	inst.Status = api.StatusCompleted
	if err := s.UpdateInstance(inst); err != nil {
		t.Fatalf("UpdateInstance: %v", err)
	}

	got, err := s.GetInstance("i1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.Status != api.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}

	completed, err := s.ListInstances(InstanceFilter{Status: api.StatusCompleted})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("filtered list = %d, want 1", len(completed))
	}

	none, err := s.ListInstances(InstanceFilter{SpecID: "other"})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("filtered list = %d, want 0", len(none))
	}
}

func TestInMemoryStore_State(t *testing.T) {
	s := NewInMemoryStore()

	records := []api.StateRecord{
		{FlowInstanceID: "i1", Variable: "stage", Value: "draft"},
		{FlowInstanceID: "i1", Variable: "score", Value: 0.8},
		{FlowInstanceID: "i2", Variable: "stage", Value: "final"},
	}
	if err := s.SaveStateRecords(records); err != nil {
		t.Fatalf("SaveStateRecords: %v", err)
	}

	// A later write for the same variable replaces the value.
	if err := s.SaveStateRecords([]api.StateRecord{
		{FlowInstanceID: "i1", Variable: "stage", Value: "final"},
	}); err != nil {
		t.Fatalf("SaveStateRecords: %v", err)
	}

	state, err := s.GetState("i1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state["stage"] != "final" || state["score"] != 0.8 {
		t.Fatalf("state = %v", state)
	}

	other, _ := s.GetState("i2")
	if len(other) != 1 {
		t.Fatalf("i2 state = %v", other)
	}
}

func TestInMemoryStore_Events(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i, typ := range []api.EventType{api.EventFlowStarted, api.EventTaskDispatched, api.EventFlowCompleted} {
		ev := api.FlowEvent{
			InstanceID: "i1",
			At:         time.Now().Add(time.Duration(i) * time.Millisecond),
			Type:       typ,
		}
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := s.ListEvents(ctx, "i1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Type != api.EventFlowStarted || events[2].Type != api.EventFlowCompleted {
		t.Fatalf("event order = %v", events)
	}
}
