// Package state implements the per-execution flow state store.
//
// The store is the only mutable structure shared between concurrent
// branches of a running flow. Keys are spread over sharded locks so that
// unrelated state updates never serialize against each other; the state
// operations of a single edge traversal are applied atomically with
// respect to other traversals touching the same keys.
package state

import (
	"encoding/json"
	"hash/fnv"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/crewflow/crewflow/pkg/api"
	"github.com/crewflow/crewflow/pkg/cel"
)

const shardCount = 16

type shard struct {
	mu     sync.Mutex
	values map[string]any
}

// Store is a key/value flow state scoped to one execution instance. It is
// created at execution start, mutated by edge state operations, and
// discarded (or persisted per edge) at execution end.
type Store struct {
	shards [shardCount]*shard
}

// New creates a Store seeded with the given initial values.
func New(initial map[string]any) *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{
			values: make(map[string]any),
		}
	}
	for k, v := range initial {
		s.shardFor(k).values[k] = v
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Store) Set(key string, value any) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.values[key] = value
}

// Snapshot returns a copy of the full state, suitable for dispatch
// requests and condition evaluation outside the store's locks.
func (s *Store) Snapshot() map[string]any {
	out := make(map[string]any)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, v := range sh.values {
			out[k] = v
		}
		sh.mu.Unlock()
	}
	return out
}

var reStateRef = regexp.MustCompile(`state\["([^"]+)"\]`)

// Apply executes one edge's state operations atomically: reads populate
// the evaluation context, the optional condition guards the writes, and
// each write sets its variable to a literal or an evaluated expression,
// in order. Values parsed from the completed task's output overlay the
// evaluation context but are never written back implicitly.
//
// The returned records describe the writes performed, keyed to the given
// instance id, for the persistence collaborator. applied is false when the
// guard condition evaluated to false and no write happened.
func (s *Store) Apply(instanceID string, ops *api.StateOperations, taskOutput any) (records []api.StateRecord, applied bool) {
	if ops == nil {
		return nil, true
	}

	keys := s.involvedKeys(ops)
	shards := s.lockAll(keys)
	defer unlockAll(shards)

	ctx := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.shardFor(k).values[k]; ok {
			ctx[k] = v
		}
	}
	for k, v := range ParseTaskOutput(taskOutput) {
		ctx[k] = v
	}

	if ops.Condition != "" {
		if ok, err := cel.EvaluateExpression(ops.Condition, ctx); err != nil || !ok {
			return nil, false
		}
	}

	for _, w := range ops.Writes {
		if w.Variable == "" {
			continue
		}
		var value any
		if w.Expression != "" {
			value = evalWriteExpression(w.Expression, ctx)
		} else {
			value = literalValue(w.Value)
		}
		s.shardFor(w.Variable).values[w.Variable] = value
		ctx[w.Variable] = value
		records = append(records, api.StateRecord{
			FlowInstanceID: instanceID,
			Variable:       w.Variable,
			Value:          value,
		})
	}
	return records, true
}

// involvedKeys collects every key the operation set may touch: declared
// reads, written variables, and state references inside the guard and the
// write expressions.
func (s *Store) involvedKeys(ops *api.StateOperations) []string {
	seen := make(map[string]struct{})
	add := func(k string) {
		if k != "" {
			seen[k] = struct{}{}
		}
	}
	for _, k := range ops.Reads {
		add(k)
	}
	for _, w := range ops.Writes {
		add(w.Variable)
		for _, m := range reStateRef.FindAllStringSubmatch(w.Expression, -1) {
			add(m[1])
		}
	}
	for _, c := range cel.ToConditions(ops.Condition) {
		add(c.Field)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lockAll locks the distinct shards for the given keys in index order.
func (s *Store) lockAll(keys []string) []*shard {
	indexes := make(map[int]struct{})
	for _, k := range keys {
		h := fnv.New32a()
		_, _ = h.Write([]byte(k))
		indexes[int(h.Sum32()%shardCount)] = struct{}{}
	}
	order := make([]int, 0, len(indexes))
	for i := range indexes {
		order = append(order, i)
	}
	sort.Ints(order)

	out := make([]*shard, 0, len(order))
	for _, i := range order {
		s.shards[i].mu.Lock()
		out = append(out, s.shards[i])
	}
	return out
}

func unlockAll(shards []*shard) {
	for _, sh := range shards {
		sh.mu.Unlock()
	}
}

// evalWriteExpression resolves a write expression against the evaluation
// context. Supported forms, tried in order: a state reference, a numeric
// literal, a quoted string, a boolean literal, a condition-language chain
// (yielding its boolean result). Anything else is stored verbatim.
func evalWriteExpression(expr string, ctx map[string]any) any {
	expr = strings.TrimSpace(expr)

	if m := reStateRef.FindStringSubmatch(expr); m != nil && m[0] == expr {
		return ctx[m[1]]
	}
	if f, err := strconv.ParseFloat(expr, 64); err == nil {
		return f
	}
	if len(expr) >= 2 && expr[0] == '"' && expr[len(expr)-1] == '"' {
		if unquoted, err := strconv.Unquote(expr); err == nil {
			return unquoted
		}
	}
	if expr == "true" || expr == "false" {
		return expr == "true"
	}
	if conds := cel.ToConditions(expr); len(conds) > 0 {
		return cel.Evaluate(conds, ctx)
	}
	return expr
}

// literalValue converts a literal write value, keeping numbers and
// booleans typed so later comparisons behave.
func literalValue(v string) any {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if v == "true" || v == "false" {
		return v == "true"
	}
	return v
}

// Matches top-level JSON-ish blocks inside free-form task output.
var reJSONBlock = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// ParseTaskOutput extracts key/value pairs from a completed task's output.
// Map outputs pass through; string outputs that are JSON objects, or that
// embed JSON blocks, are parsed and merged. Everything else yields nil.
func ParseTaskOutput(output any) map[string]any {
	switch t := output.(type) {
	case nil:
		return nil
	case map[string]any:
		return t
	case string:
		trimmed := strings.TrimSpace(t)
		var direct map[string]any
		if err := json.Unmarshal([]byte(trimmed), &direct); err == nil {
			return direct
		}

		var merged map[string]any
		for _, block := range reJSONBlock.FindAllString(trimmed, -1) {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(block), &parsed); err != nil {
				continue
			}
			if merged == nil {
				merged = make(map[string]any)
			}
			for k, v := range parsed {
				merged[k] = v
			}
		}
		return merged
	default:
		return nil
	}
}
