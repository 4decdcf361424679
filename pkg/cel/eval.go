package cel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/crewflow/crewflow/pkg/api"
)

// ErrUnparseable is returned by EvaluateExpression for a non-empty
// expression that yields no canonical-shape clause. Callers treat it as a
// false result, never as a fatal error.
var ErrUnparseable = errors.New("cel: expression does not match the canonical shape")

// Evaluate folds a condition chain left to right against the given state.
// A clause referencing a missing state key, or comparing incompatible
// values, evaluates to false rather than raising; this keeps
// partially-specified flows runnable during authoring. An empty chain is
// vacuously true.
func Evaluate(conditions []api.Condition, state map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}

	result := evalClause(conditions[0], state)
	for _, c := range conditions[1:] {
		if strings.EqualFold(c.Connector, api.ConnectorOr) {
			result = result || evalClause(c, state)
		} else {
			result = result && evalClause(c, state)
		}
	}
	return result
}

// EvaluateExpression parses expr and evaluates the resulting chain against
// state. An empty expression is true (the no-condition case). A non-empty
// expression that does not parse returns (false, ErrUnparseable).
func EvaluateExpression(expr string, state map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	conditions := ToConditions(expr)
	if len(conditions) == 0 {
		return false, ErrUnparseable
	}
	return Evaluate(conditions, state), nil
}

func evalClause(c api.Condition, state map[string]any) bool {
	raw, ok := state[c.Field]
	if !ok {
		return false
	}

	got := stringify(raw)

	switch c.Operator {
	case api.OpEqual:
		if gf, wf, ok := bothNumeric(raw, c.Value); ok {
			return gf == wf
		}
		return got == c.Value
	case api.OpNotEqual:
		if gf, wf, ok := bothNumeric(raw, c.Value); ok {
			return gf != wf
		}
		return got != c.Value
	case api.OpGreater:
		if gf, wf, ok := bothNumeric(raw, c.Value); ok {
			return gf > wf
		}
		return got > c.Value
	case api.OpLess:
		if gf, wf, ok := bothNumeric(raw, c.Value); ok {
			return gf < wf
		}
		return got < c.Value
	case api.OpGreaterEqual:
		if gf, wf, ok := bothNumeric(raw, c.Value); ok {
			return gf >= wf
		}
		return got >= c.Value
	case api.OpLessEqual:
		if gf, wf, ok := bothNumeric(raw, c.Value); ok {
			return gf <= wf
		}
		return got <= c.Value
	case api.OpContains:
		return strings.Contains(got, c.Value)
	case api.OpStartsWith:
		return strings.HasPrefix(got, c.Value)
	case api.OpEndsWith:
		return strings.HasSuffix(got, c.Value)
	default:
		return false
	}
}

func bothNumeric(raw any, want string) (got, expected float64, ok bool) {
	gf, ok := toFloat(raw)
	if !ok {
		return 0, 0, false
	}
	wf, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return 0, 0, false
	}
	return gf, wf, true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
