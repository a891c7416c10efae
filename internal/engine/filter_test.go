package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	return engErr.Kind
}

func TestBuildFilterNilInput(t *testing.T) {
	group, err := BuildFilter(testEventsTable(), nil)
	require.NoError(t, err)
	assert.Nil(t, group)
}

func TestBuildFilterEmptyGroupMatchesAll(t *testing.T) {
	group, err := BuildFilter(testEventsTable(), &FilterInput{Logic: "AND", Conditions: []FilterInput{}})
	require.NoError(t, err)
	require.NotNil(t, group)

	clause, args := compileGroup(group)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestBuildFilterBareEmptyObjectMatchesAll(t *testing.T) {
	group, err := BuildFilter(testEventsTable(), &FilterInput{})
	require.NoError(t, err)
	require.NotNil(t, group)

	clause, args := compileGroup(group)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestBuildFilterSingleCondition(t *testing.T) {
	group, err := BuildFilter(testEventsTable(), &FilterInput{
		Field: "status", Operator: OpEq, Value: "active",
	})
	require.NoError(t, err)
	require.Len(t, group.Nodes, 1)
	require.NotNil(t, group.Nodes[0].Condition)
	assert.Equal(t, []any{"active"}, group.Nodes[0].Condition.Values)
}

func TestBuildFilterUnknownField(t *testing.T) {
	_, err := BuildFilter(testEventsTable(), &FilterInput{
		Field: "nonexistent", Operator: OpEq, Value: "x",
	})
	assert.Equal(t, KindUnknownField, kindOf(t, err))
	assert.Contains(t, err.Error(), "nonexistent")
	assert.Contains(t, err.Error(), "events")
}

func TestBuildFilterUnknownOperator(t *testing.T) {
	_, err := BuildFilter(testEventsTable(), &FilterInput{
		Field: "status", Operator: "matches", Value: "x",
	})
	assert.Equal(t, KindInvalidFilterValue, kindOf(t, err))
}

func TestBuildFilterArityMismatch(t *testing.T) {
	tests := []struct {
		name  string
		input FilterInput
	}{
		{"between with one value", FilterInput{Field: "latency_ms", Operator: OpBetween, Values: []any{float64(1)}}},
		{"between with three values", FilterInput{Field: "latency_ms", Operator: OpBetween, Values: []any{float64(1), float64(2), float64(3)}}},
		{"eq without value", FilterInput{Field: "status", Operator: OpEq}},
		{"in without values", FilterInput{Field: "status", Operator: OpIn}},
		{"is_null with value", FilterInput{Field: "status", Operator: OpIsNull, Value: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildFilter(testEventsTable(), &tt.input)
			assert.Equal(t, KindInvalidFilterValue, kindOf(t, err))
		})
	}
}

func TestBuildFilterTypeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		input FilterInput
	}{
		{"number for string column", FilterInput{Field: "status", Operator: OpEq, Value: float64(1)}},
		{"string for number column", FilterInput{Field: "latency_ms", Operator: OpGt, Value: "fast"}},
		{"string for boolean column", FilterInput{Field: "is_error", Operator: OpEq, Value: "yes"}},
		{"garbage datetime", FilterInput{Field: "created_at", Operator: OpGte, Value: "not-a-date"}},
		{"number pattern for like", FilterInput{Field: "status", Operator: OpLike, Value: float64(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildFilter(testEventsTable(), &tt.input)
			assert.Equal(t, KindTypeMismatch, kindOf(t, err))
		})
	}
}

func TestBuildFilterDatetimeFormats(t *testing.T) {
	for _, value := range []string{"2024-01-01", "2024-01-01 15:04:05", "2024-01-01T15:04:05Z"} {
		_, err := BuildFilter(testEventsTable(), &FilterInput{
			Field: "created_at", Operator: OpGte, Value: value,
		})
		assert.NoError(t, err, "value %q", value)
	}
}

func TestBuildFilterDepthBound(t *testing.T) {
	// Wrap a valid condition in MaxFilterDepth+1 nested groups.
	input := FilterInput{Field: "status", Operator: OpEq, Value: "active"}
	for i := 0; i <= MaxFilterDepth; i++ {
		input = FilterInput{Logic: "AND", Conditions: []FilterInput{input}}
	}
	_, err := BuildFilter(testEventsTable(), &input)
	assert.Equal(t, KindFilterTooDeep, kindOf(t, err))
}

func TestBuildFilterNestingPreserved(t *testing.T) {
	input := &FilterInput{
		Logic: "AND",
		Conditions: []FilterInput{
			{Field: "status", Operator: OpEq, Value: "active"},
			{
				Logic: "OR",
				Conditions: []FilterInput{
					{Field: "latency_ms", Operator: OpGt, Value: float64(100)},
					{Field: "is_error", Operator: OpEq, Value: true},
				},
			},
		},
	}
	group, err := BuildFilter(testEventsTable(), input)
	require.NoError(t, err)

	require.Len(t, group.Nodes, 2)
	assert.Equal(t, LogicAnd, group.Logic)
	require.NotNil(t, group.Nodes[0].Condition)
	require.NotNil(t, group.Nodes[1].Group)
	inner := group.Nodes[1].Group
	assert.Equal(t, LogicOr, inner.Logic)
	require.Len(t, inner.Nodes, 2)

	clause, args := compileGroup(group)
	assert.Equal(t, "(`status` = ? AND (`latency_ms` > ? OR `is_error` = ?))", clause)
	assert.Equal(t, []any{"active", float64(100), true}, args)
}

func TestBuildFilterLikeBindsPatternAsParameter(t *testing.T) {
	group, err := BuildFilter(testEventsTable(), &FilterInput{
		Field: "status", Operator: OpILike, Value: "%act_ve%",
	})
	require.NoError(t, err)

	clause, args := compileGroup(group)
	assert.Equal(t, "(lower(`status`) LIKE lower(?))", clause)
	assert.Equal(t, []any{"%act_ve%"}, args)
}

func TestBuildFilterInExpandsPlaceholders(t *testing.T) {
	group, err := BuildFilter(testEventsTable(), &FilterInput{
		Field: "status", Operator: OpIn, Values: []any{"active", "pending", "done"},
	})
	require.NoError(t, err)

	clause, args := compileGroup(group)
	assert.Equal(t, "(`status` IN (?, ?, ?))", clause)
	assert.Equal(t, []any{"active", "pending", "done"}, args)
}

func TestBuildFilterNumberCoercion(t *testing.T) {
	group, err := BuildFilter(testEventsTable(), &FilterInput{
		Field: "retries", Operator: OpLte, Value: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3)}, group.Nodes[0].Condition.Values)
}
