package engine

import (
	"encoding/json"
	"time"
)

// Operator is the closed set of filter operators.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpLike      Operator = "like"
	OpILike     Operator = "ilike"
	OpBetween   Operator = "between"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

// operator arity: how many values the operator binds.
type arity int

const (
	arityNone arity = iota // no value (is_null, is_not_null)
	arityOne               // single scalar
	arityMany              // one or more scalars (in, not_in)
	arityPair              // exactly two scalars (between)
)

type operatorSpec struct {
	arity    arity
	fragment string // compiled SQL with %s for the quoted identifier
}

// operators maps each operator to its expected arity and compiled fragment.
// Value placeholders are always positional parameters; identifiers are
// substituted only after whitelist validation.
var operators = map[Operator]operatorSpec{
	OpEq:        {arityOne, "%s = ?"},
	OpNeq:       {arityOne, "%s != ?"},
	OpGt:        {arityOne, "%s > ?"},
	OpGte:       {arityOne, "%s >= ?"},
	OpLt:        {arityOne, "%s < ?"},
	OpLte:       {arityOne, "%s <= ?"},
	OpIn:        {arityMany, "%s IN (%s)"},
	OpNotIn:     {arityMany, "%s NOT IN (%s)"},
	OpLike:      {arityOne, "%s LIKE ?"},
	OpILike:     {arityOne, "lower(%s) LIKE lower(?)"},
	OpBetween:   {arityPair, "%s BETWEEN ? AND ?"},
	OpIsNull:    {arityNone, "%s IS NULL"},
	OpIsNotNull: {arityNone, "%s IS NOT NULL"},
}

// Logic combines the members of a filter group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// MaxFilterDepth bounds filter tree nesting to keep compile time bounded.
const MaxFilterDepth = 10

// FilterInput is the raw, not-yet-validated filter tree submitted by a
// client. A node is a group when Conditions is present, a condition
// otherwise.
type FilterInput struct {
	// Condition fields
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
	Values   []any    `json:"values,omitempty"`

	// Group fields
	Logic      string        `json:"logic,omitempty"`
	Conditions []FilterInput `json:"conditions,omitempty"`
}

func (f *FilterInput) isGroup() bool {
	if f.Conditions != nil || (f.Logic != "" && f.Field == "") {
		return true
	}
	// A bare {} is an empty group matching all rows, not a condition.
	return f.Field == "" && f.Operator == ""
}

// FilterCondition is one validated predicate. Values holds the coerced
// literals in binding order (one for scalar operators, two for between,
// n for in/not_in, none for null checks).
type FilterCondition struct {
	Field    string
	Operator Operator
	Values   []any
}

// FilterNode is a tagged variant: exactly one of Condition or Group is set.
type FilterNode struct {
	Condition *FilterCondition
	Group     *FilterGroup
}

// FilterGroup is a validated boolean combination of conditions and nested
// groups. An empty group matches all rows.
type FilterGroup struct {
	Logic Logic
	Nodes []FilterNode
}

// BuildFilter validates a raw filter tree against a table descriptor and
// returns the validated group. A nil input yields a nil group ("match all").
func BuildFilter(desc *TableDescriptor, input *FilterInput) (*FilterGroup, error) {
	if input == nil {
		return nil, nil
	}
	node, err := buildNode(desc, input, 1)
	if err != nil {
		return nil, err
	}
	if node.Group != nil {
		return node.Group, nil
	}
	// A bare condition at the root is wrapped in a single-member AND group.
	return &FilterGroup{Logic: LogicAnd, Nodes: []FilterNode{node}}, nil
}

func buildNode(desc *TableDescriptor, input *FilterInput, depth int) (FilterNode, error) {
	if depth > MaxFilterDepth {
		return FilterNode{}, errFilterTooDeep(MaxFilterDepth)
	}
	if input.isGroup() {
		group, err := buildGroup(desc, input, depth)
		if err != nil {
			return FilterNode{}, err
		}
		return FilterNode{Group: group}, nil
	}
	cond, err := buildCondition(desc, input)
	if err != nil {
		return FilterNode{}, err
	}
	return FilterNode{Condition: cond}, nil
}

func buildGroup(desc *TableDescriptor, input *FilterInput, depth int) (*FilterGroup, error) {
	logic := LogicAnd
	switch input.Logic {
	case "", "AND", "and":
	case "OR", "or":
		logic = LogicOr
	default:
		return nil, errInvalidFilterValue("unknown logic combinator %q, expected AND or OR", input.Logic)
	}
	group := &FilterGroup{Logic: logic}
	for i := range input.Conditions {
		node, err := buildNode(desc, &input.Conditions[i], depth+1)
		if err != nil {
			return nil, err
		}
		group.Nodes = append(group.Nodes, node)
	}
	return group, nil
}

func buildCondition(desc *TableDescriptor, input *FilterInput) (*FilterCondition, error) {
	col, ok := desc.Column(input.Field)
	if !ok {
		return nil, errUnknownField(desc.Name, input.Field)
	}
	spec, ok := operators[input.Operator]
	if !ok {
		return nil, errInvalidFilterValue("unknown operator %q", input.Operator)
	}

	cond := &FilterCondition{Field: col.Name, Operator: input.Operator}
	switch spec.arity {
	case arityNone:
		if input.Value != nil || len(input.Values) > 0 {
			return nil, errInvalidFilterValue("operator %q takes no value", input.Operator)
		}
	case arityOne:
		if input.Value == nil {
			return nil, errInvalidFilterValue("operator %q requires a single value", input.Operator)
		}
		v, err := coerceValue(col, input.Value, input.Operator)
		if err != nil {
			return nil, err
		}
		cond.Values = []any{v}
	case arityPair:
		if len(input.Values) != 2 {
			return nil, errInvalidFilterValue("operator %q requires exactly two values", input.Operator)
		}
		for _, raw := range input.Values {
			v, err := coerceValue(col, raw, input.Operator)
			if err != nil {
				return nil, err
			}
			cond.Values = append(cond.Values, v)
		}
	case arityMany:
		values := input.Values
		if len(values) == 0 && input.Value != nil {
			values = []any{input.Value}
		}
		if len(values) == 0 {
			return nil, errInvalidFilterValue("operator %q requires at least one value", input.Operator)
		}
		for _, raw := range values {
			v, err := coerceValue(col, raw, input.Operator)
			if err != nil {
				return nil, err
			}
			cond.Values = append(cond.Values, v)
		}
	}
	return cond, nil
}

// coerceValue checks a literal against the column's declared type and
// normalizes it for parameter binding. Pattern operators always bind the
// raw string; wildcards travel inside the parameter, never the query text.
func coerceValue(col *Column, raw any, op Operator) (any, error) {
	if op == OpLike || op == OpILike {
		s, ok := raw.(string)
		if !ok {
			return nil, errTypeMismatch(col.Name, TypeString, raw)
		}
		return s, nil
	}
	switch col.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, errTypeMismatch(col.Name, TypeString, raw)
		}
		return s, nil
	case TypeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, errTypeMismatch(col.Name, TypeNumber, raw)
			}
			return f, nil
		default:
			return nil, errTypeMismatch(col.Name, TypeNumber, raw)
		}
	case TypeDatetime:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			if _, err := parseDatetime(v); err != nil {
				return nil, errTypeMismatch(col.Name, TypeDatetime, raw)
			}
			return v, nil
		default:
			return nil, errTypeMismatch(col.Name, TypeDatetime, raw)
		}
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, errTypeMismatch(col.Name, TypeBoolean, raw)
		}
		return b, nil
	}
	return raw, nil
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDatetime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
