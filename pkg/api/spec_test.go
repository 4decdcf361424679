package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFlowSpecification_RoutersOmittedWhenEmpty(t *testing.T) {
	spec := FlowSpecification{
		ID:             "flow-1",
		Name:           "demo",
		Type:           SpecType,
		Listeners:      []Listener{},
		Actions:        []Action{},
		StartingPoints: []StartingPoint{},
	}

	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	doc := string(data)

	if strings.Contains(doc, `"routers"`) {
		t.Fatalf("routers key must be absent when no routers compiled: %s", doc)
	}
	// Empty collections stay present as [] for a stable document shape.
	for _, key := range []string{`"listeners":[]`, `"actions":[]`, `"startingPoints":[]`} {
		if !strings.Contains(doc, key) {
			t.Fatalf("document missing %s: %s", key, doc)
		}
	}
}

func TestFlowSpecification_RoutersPresentWhenCompiled(t *testing.T) {
	spec := FlowSpecification{
		ID:   "flow-1",
		Type: SpecType,
		Routers: []Router{{
			Name:           "router_0",
			ListenTo:       "starting_point_0",
			ConditionField: "verdict",
			Routes: map[string][]RouteTarget{
				DefaultRoute: {{TaskID: "b1", CrewID: "B"}},
			},
			Condition: `state["verdict"] == "approved"`,
		}},
	}

	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"routers"`) {
		t.Fatalf("routers key missing: %s", data)
	}

	var back FlowSpecification
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	targets := back.Routers[0].Routes[DefaultRoute]
	if len(targets) != 1 || targets[0].TaskID != "b1" {
		t.Fatalf("router routes lost on round trip: %+v", back.Routers[0])
	}
}

func TestEdgeData_WireFieldNames(t *testing.T) {
	e := Edge{
		ID:     "e1",
		Source: "A",
		Target: "B",
		Data: EdgeData{
			ListenToTaskIDs: []string{"a1"},
			TargetTaskIDs:   []string{"b1"},
			LogicType:       LogicAnd,
			RouterCondition: "",
		},
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	doc := string(data)

	// The authoring surface exchanges camelCase documents.
	for _, key := range []string{`"listenToTaskIds"`, `"targetTaskIds"`, `"logicType"`} {
		if !strings.Contains(doc, key) {
			t.Fatalf("edge document missing %s: %s", key, doc)
		}
	}
}

func TestListener_PreservesRouterConfig(t *testing.T) {
	l := Listener{
		ID:            "e1",
		CrewID:        "B",
		ConditionType: LogicNone,
		RouterConfig:  &RouterConfig{Condition: `state["x"] == "1"`},
	}

	data, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back Listener
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.RouterConfig == nil || back.RouterConfig.Condition != l.RouterConfig.Condition {
		t.Fatalf("routerConfig lost on round trip: %+v", back)
	}
}
