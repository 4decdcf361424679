// Package cel implements the restricted condition expression language used
// by flow edges and routers: a bidirectional translator between structured
// Condition lists and flat boolean expression strings.
//
// The language is intentionally not a general-purpose expression grammar.
// Conditions form a chain joined left to right by lowercase "and"/"or" with
// no precedence or grouping, mirroring how the chains are authored
// visually. Expressions produced by any path other than ToExpression may
// fail to round-trip; such strings are preserved verbatim as opaque
// conditions and simply cannot be edited in structured form.
package cel

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/crewflow/crewflow/pkg/api"
)

// Canonical clause shapes. Relational clauses read the state key on the
// left; membership tests put the needle first, matching the rendering.
var (
	reStartsWith = regexp.MustCompile(`^state\["([^"]+)"\]\.startswith\((.+)\)$`)
	reEndsWith   = regexp.MustCompile(`^state\["([^"]+)"\]\.endswith\((.+)\)$`)
	reContains   = regexp.MustCompile(`^(.+?)\s+in\s+state\["([^"]+)"\]$`)
	reCompare    = regexp.MustCompile(`^state\["([^"]+)"\]\s*(==|!=|>=|<=|>|<)\s*(.+)$`)
)

// ToExpression renders an ordered condition chain as a single boolean
// expression string. An empty chain renders as the empty string.
func ToExpression(conditions []api.Condition) string {
	var b strings.Builder
	for _, c := range conditions {
		clause := renderClause(c)
		if clause == "" {
			continue
		}
		if b.Len() > 0 {
			connector := "and"
			if strings.EqualFold(c.Connector, api.ConnectorOr) {
				connector = "or"
			}
			b.WriteString(" " + connector + " ")
		}
		b.WriteString(clause)
	}
	return b.String()
}

// ToConditions parses an expression produced by ToExpression back into its
// condition chain. It is a best-effort partial inverse: fragments that do
// not match the canonical shape are dropped silently, and callers must
// treat an empty result for a non-empty input as "rebuild from scratch".
func ToConditions(expr string) []api.Condition {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}

	fragments, connectors := splitChain(expr)

	var out []api.Condition
	for i, frag := range fragments {
		cond, ok := parseClause(frag)
		if !ok {
			continue
		}
		if len(out) > 0 {
			cond.Connector = connectors[i-1]
			if cond.Connector == "" {
				// The preceding fragment was dropped; default to AND so the
				// chain stays well-formed.
				cond.Connector = api.ConnectorAnd
			}
		}
		out = append(out, cond)
	}
	return out
}

// splitChain splits expr on top-level and/or tokens. connectors[i] joins
// fragments[i] and fragments[i+1], normalized to uppercase. Tokens inside
// double-quoted values never split the chain.
func splitChain(expr string) (fragments []string, connectors []string) {
	prev := 0
	inQuote := false
	for i := 0; i < len(expr); i++ {
		switch {
		case inQuote:
			if expr[i] == '\\' {
				i++
			} else if expr[i] == '"' {
				inQuote = false
			}
		case expr[i] == '"':
			inQuote = true
		default:
			if connector, width := connectorAt(expr, i); width > 0 {
				fragments = append(fragments, strings.TrimSpace(expr[prev:i]))
				connectors = append(connectors, connector)
				prev = i + width
				i = prev - 1
			}
		}
	}
	fragments = append(fragments, strings.TrimSpace(expr[prev:]))
	return fragments, connectors
}

// connectorAt matches a space-delimited and/or token starting at offset i,
// case-insensitively, and reports its width.
func connectorAt(expr string, i int) (string, int) {
	rest := expr[i:]
	for _, c := range []struct {
		token     string
		connector string
	}{
		{" and ", api.ConnectorAnd},
		{" or ", api.ConnectorOr},
	} {
		if len(rest) >= len(c.token) && strings.EqualFold(rest[:len(c.token)], c.token) {
			return c.connector, len(c.token)
		}
	}
	return "", 0
}

func renderClause(c api.Condition) string {
	if c.Field == "" {
		return ""
	}

	key := `state["` + c.Field + `"]`
	val := renderValue(c.Value)

	switch c.Operator {
	case api.OpEqual:
		return key + " == " + val
	case api.OpNotEqual:
		return key + " != " + val
	case api.OpGreater:
		return key + " > " + val
	case api.OpLess:
		return key + " < " + val
	case api.OpGreaterEqual:
		return key + " >= " + val
	case api.OpLessEqual:
		return key + " <= " + val
	case api.OpContains:
		return val + " in " + key
	case api.OpStartsWith:
		return key + ".startswith(" + val + ")"
	case api.OpEndsWith:
		return key + ".endswith(" + val + ")"
	default:
		return ""
	}
}

func parseClause(frag string) (api.Condition, bool) {
	if m := reStartsWith.FindStringSubmatch(frag); m != nil {
		return api.Condition{Field: m[1], Operator: api.OpStartsWith, Value: parseValue(m[2])}, true
	}
	if m := reEndsWith.FindStringSubmatch(frag); m != nil {
		return api.Condition{Field: m[1], Operator: api.OpEndsWith, Value: parseValue(m[2])}, true
	}
	if m := reContains.FindStringSubmatch(frag); m != nil {
		return api.Condition{Field: m[2], Operator: api.OpContains, Value: parseValue(m[1])}, true
	}
	if m := reCompare.FindStringSubmatch(frag); m != nil {
		op := m[2]
		if op == "==" {
			op = api.OpEqual
		}
		return api.Condition{Field: m[1], Operator: op, Value: parseValue(m[3])}, true
	}
	return api.Condition{}, false
}

// renderValue quotes everything that does not look numeric. The equality
// test against a quoted value keeps string-typed state comparisons exact.
func renderValue(v string) string {
	if isNumeric(v) {
		return v
	}
	return strconv.Quote(v)
}

func parseValue(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		if unquoted, err := strconv.Unquote(v); err == nil {
			return unquoted
		}
	}
	return v
}

func isNumeric(v string) bool {
	if v == "" {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}
