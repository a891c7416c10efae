package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlanDefaults(t *testing.T) {
	plan, err := newPlan(testEventsTable(), PlanRequest{Table: "events"})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Page())
	assert.Equal(t, DefaultPageSize, plan.PageSize())
	assert.False(t, plan.Aggregated())
	assert.Nil(t, plan.Filter())
}

func TestNewPlanUnknownColumn(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{
		Table:   "events",
		Columns: []string{"status", "bogus"},
	})
	assert.Equal(t, KindUnknownField, kindOf(t, err))
}

func TestNewPlanUnknownSortField(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{
		Table: "events",
		Sort:  []SortInput{{Field: "bogus", Order: "desc"}},
	})
	assert.Equal(t, KindUnknownField, kindOf(t, err))
}

func TestNewPlanBadSortOrder(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{
		Table: "events",
		Sort:  []SortInput{{Field: "status", Order: "sideways"}},
	})
	assert.Equal(t, KindInvalidFilterValue, kindOf(t, err))
}

func TestNewPlanPageBounds(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{Table: "events", Page: -1})
	assert.Equal(t, KindInvalidFilterValue, kindOf(t, err))

	_, err = newPlan(testEventsTable(), PlanRequest{Table: "events", PageSize: MaxPageSize + 1})
	assert.Equal(t, KindInvalidFilterValue, kindOf(t, err))
}

func TestNewPlanQuantileParameter(t *testing.T) {
	for _, param := range []float64{-0.1, 1.1, 42} {
		_, err := newPlan(testEventsTable(), PlanRequest{
			Table:      "events",
			Aggregates: []AggregateInput{{Function: AggQuantile, Field: "latency_ms", Parameter: param}},
		})
		assert.Equal(t, KindInvalidAggregateParameter, kindOf(t, err), "param %v", param)
	}

	plan, err := newPlan(testEventsTable(), PlanRequest{
		Table:      "events",
		GroupBy:    []string{"endpoint"},
		Aggregates: []AggregateInput{{Function: AggQuantile, Field: "latency_ms", Parameter: 0.95, Alias: "p95"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p95"}, plan.AggregateAliases())
}

func TestNewPlanParameterOnlyForQuantile(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{
		Table:      "events",
		Aggregates: []AggregateInput{{Function: AggAvg, Field: "latency_ms", Parameter: 0.5}},
	})
	assert.Equal(t, KindInvalidAggregateParameter, kindOf(t, err))
}

func TestNewPlanAggregateRequiresField(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{
		Table:      "events",
		Aggregates: []AggregateInput{{Function: AggSum}},
	})
	assert.Equal(t, KindInvalidAggregateParameter, kindOf(t, err))

	// count is the exception
	plan, err := newPlan(testEventsTable(), PlanRequest{
		Table:      "events",
		Aggregates: []AggregateInput{{Function: AggCount}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, plan.AggregateAliases())
}

func TestNewPlanDefaultAlias(t *testing.T) {
	plan, err := newPlan(testEventsTable(), PlanRequest{
		Table:      "events",
		GroupBy:    []string{"endpoint"},
		Aggregates: []AggregateInput{{Function: AggAvg, Field: "latency_ms"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"avg_latency_ms"}, plan.AggregateAliases())
}

func TestNewPlanAmbiguousAggregation(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{
		Table:      "events",
		Columns:    []string{"request_id"},
		GroupBy:    []string{"endpoint"},
		Aggregates: []AggregateInput{{Function: AggQuantile, Field: "latency_ms", Parameter: 0.95, Alias: "p95"}},
	})
	assert.Equal(t, KindAmbiguousAggregation, kindOf(t, err))
	assert.Contains(t, err.Error(), "request_id")
}

func TestNewPlanGroupedColumnSelectionAllowed(t *testing.T) {
	plan, err := newPlan(testEventsTable(), PlanRequest{
		Table:      "events",
		Columns:    []string{"endpoint"},
		GroupBy:    []string{"endpoint"},
		Aggregates: []AggregateInput{{Function: AggCount, Alias: "n"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"endpoint", "n"}, plan.OutputColumns())
}

func TestNewPlanTimeBucket(t *testing.T) {
	plan, err := newPlan(testEventsTable(), PlanRequest{
		Table:           "events",
		TimeColumn:      "created_at",
		TimeGranularity: GranDay,
		Aggregates:      []AggregateInput{{Function: AggCount, Alias: "n"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{TimeBucketAlias}, plan.GroupKeys())
	assert.Equal(t, []string{TimeBucketAlias, "n"}, plan.OutputColumns())
}

func TestNewPlanTimeBucketRequiresDatetimeColumn(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{
		Table:           "events",
		TimeColumn:      "latency_ms",
		TimeGranularity: GranHour,
	})
	assert.Equal(t, KindTypeMismatch, kindOf(t, err))
}

func TestNewPlanUnknownGranularity(t *testing.T) {
	_, err := newPlan(testEventsTable(), PlanRequest{
		Table:           "events",
		TimeColumn:      "created_at",
		TimeGranularity: "fortnight",
	})
	assert.Equal(t, KindInvalidFilterValue, kindOf(t, err))
}

func TestNewPlanOutputColumnsDefaultToTable(t *testing.T) {
	plan, err := newPlan(testEventsTable(), PlanRequest{Table: "events"})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"id", "status", "endpoint", "request_id", "latency_ms", "retries", "is_error", "created_at"},
		plan.OutputColumns())
}
