package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPlan(t *testing.T, req PlanRequest) *QueryPlan {
	t.Helper()
	plan, err := newPlan(testEventsTable(), req)
	require.NoError(t, err)
	return plan
}

func TestCompilePlainPage(t *testing.T) {
	plan := mustPlan(t, PlanRequest{Table: "events"})
	query, args := Compile(plan)
	assert.Equal(t, "SELECT * FROM `events` ORDER BY `id` ASC LIMIT ? OFFSET ?", query)
	assert.Equal(t, []any{50, 0}, args)
}

func TestCompileFilteredSortedPage(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table: "events",
		Filters: &FilterInput{
			Logic: "AND",
			Conditions: []FilterInput{
				{Field: "status", Operator: OpEq, Value: "active"},
				{Field: "created_at", Operator: OpGte, Value: "2024-01-01"},
			},
		},
		Sort: []SortInput{{Field: "created_at", Order: "desc"}},
	})
	query, args := Compile(plan)
	assert.Equal(t,
		"SELECT * FROM `events` WHERE (`status` = ? AND `created_at` >= ?)"+
			" ORDER BY `created_at` DESC, `id` DESC LIMIT ? OFFSET ?",
		query)
	assert.Equal(t, []any{"active", "2024-01-01", 50, 0}, args)
}

func TestCompilePageOffset(t *testing.T) {
	plan := mustPlan(t, PlanRequest{Table: "events", Page: 3, PageSize: 25})
	query, args := Compile(plan)
	assert.Contains(t, query, "LIMIT ? OFFSET ?")
	assert.Equal(t, []any{25, 50}, args)
}

func TestCompileColumnSelection(t *testing.T) {
	plan := mustPlan(t, PlanRequest{Table: "events", Columns: []string{"id", "status"}})
	query, _ := Compile(plan)
	assert.Equal(t, "SELECT `id`, `status` FROM `events` ORDER BY `id` ASC LIMIT ? OFFSET ?", query)
}

func TestCompileTiebreakerNotDuplicated(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table: "events",
		Sort:  []SortInput{{Field: "id", Order: "desc"}},
	})
	query, _ := Compile(plan)
	assert.Equal(t, "SELECT * FROM `events` ORDER BY `id` DESC LIMIT ? OFFSET ?", query)
}

func TestCompileGroupedQuantile(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table:   "events",
		GroupBy: []string{"endpoint"},
		Aggregates: []AggregateInput{
			{Function: AggQuantile, Field: "latency_ms", Parameter: 0.95, Alias: "p95"},
			{Function: AggCount, Alias: "n"},
		},
	})
	query, args := Compile(plan)
	assert.Equal(t,
		"SELECT `endpoint`, quantile(0.95)(`latency_ms`) AS `p95`, count() AS `n`"+
			" FROM `events` GROUP BY `endpoint` ORDER BY `endpoint` ASC LIMIT ? OFFSET ?",
		query)
	assert.Equal(t, []any{50, 0}, args)
}

func TestCompileTimeBucket(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table:           "events",
		TimeColumn:      "created_at",
		TimeGranularity: GranDay,
		GroupBy:         []string{"status"},
		Aggregates:      []AggregateInput{{Function: AggCount, Alias: "n"}},
	})
	query, _ := Compile(plan)
	assert.Equal(t,
		"SELECT toStartOfDay(`created_at`) AS `time_bucket`, `status`, count() AS `n`"+
			" FROM `events` GROUP BY `time_bucket`, `status`"+
			" ORDER BY `time_bucket` ASC, `status` ASC LIMIT ? OFFSET ?",
		query)
}

func TestCompileAggregatedExplicitSort(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table:      "events",
		GroupBy:    []string{"endpoint"},
		Aggregates: []AggregateInput{{Function: AggAvg, Field: "latency_ms", Alias: "avg_ms"}},
		Sort:       []SortInput{{Field: "endpoint", Order: "desc"}},
	})
	query, _ := Compile(plan)
	// the group key already sorts the result, no extra tail
	assert.Contains(t, query, "ORDER BY `endpoint` DESC LIMIT")
}

func TestCompileGlobalAggregate(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table:      "events",
		Aggregates: []AggregateInput{{Function: AggCount, Alias: "n"}},
	})
	query, args := Compile(plan)
	assert.Equal(t, "SELECT count() AS `n` FROM `events` LIMIT ? OFFSET ?", query)
	assert.Equal(t, []any{50, 0}, args)
}

func TestCompileGlobalAggregateFiltered(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table:      "events",
		Filters:    &FilterInput{Field: "status", Operator: OpEq, Value: "active"},
		Aggregates: []AggregateInput{{Function: AggAvg, Field: "latency_ms"}},
	})
	query, args := Compile(plan)
	assert.Equal(t,
		"SELECT avg(`latency_ms`) AS `avg_latency_ms` FROM `events` WHERE (`status` = ?) LIMIT ? OFFSET ?",
		query)
	assert.Equal(t, []any{"active", 50, 0}, args)

	exportQuery, exportArgs := CompileExport(plan, 0)
	assert.Equal(t,
		"SELECT avg(`latency_ms`) AS `avg_latency_ms` FROM `events` WHERE (`status` = ?)",
		exportQuery)
	assert.Equal(t, []any{"active"}, exportArgs)
}

func TestCompileCountGlobalAggregate(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table:      "events",
		Filters:    &FilterInput{Field: "status", Operator: OpEq, Value: "active"},
		Aggregates: []AggregateInput{{Function: AggCount}},
	})
	query, args := CompileCount(plan)
	assert.Equal(t, "SELECT toUInt64(1)", query)
	assert.Empty(t, args)
}

func TestCompileCountPlain(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table:   "events",
		Filters: &FilterInput{Field: "status", Operator: OpEq, Value: "active"},
		Sort:    []SortInput{{Field: "created_at", Order: "desc"}},
		Page:    4,
	})
	query, args := CompileCount(plan)
	assert.Equal(t, "SELECT count() FROM `events` WHERE (`status` = ?)", query)
	assert.Equal(t, []any{"active"}, args)
}

func TestCompileCountGrouped(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table:      "events",
		GroupBy:    []string{"endpoint"},
		Filters:    &FilterInput{Field: "is_error", Operator: OpEq, Value: true},
		Aggregates: []AggregateInput{{Function: AggCount, Alias: "n"}},
	})
	query, args := CompileCount(plan)
	assert.Equal(t,
		"SELECT count() FROM (SELECT `endpoint` FROM `events` WHERE (`is_error` = ?) GROUP BY `endpoint`)",
		query)
	assert.Equal(t, []any{true}, args)
}

func TestCompileExportUnbounded(t *testing.T) {
	plan := mustPlan(t, PlanRequest{Table: "events", Page: 7, PageSize: 10})
	query, args := CompileExport(plan, 0)
	assert.Equal(t, "SELECT * FROM `events` ORDER BY `id` ASC", query)
	assert.Empty(t, args)
}

func TestCompileExportLimit(t *testing.T) {
	plan := mustPlan(t, PlanRequest{Table: "events"})
	query, args := CompileExport(plan, 5000)
	assert.Equal(t, "SELECT * FROM `events` ORDER BY `id` ASC LIMIT ?", query)
	assert.Equal(t, []any{5000}, args)
}

func TestCompileBetweenAndNullChecks(t *testing.T) {
	plan := mustPlan(t, PlanRequest{
		Table: "events",
		Filters: &FilterInput{
			Logic: "AND",
			Conditions: []FilterInput{
				{Field: "latency_ms", Operator: OpBetween, Values: []any{10.0, 200.0}},
				{Field: "request_id", Operator: OpIsNotNull},
			},
		},
	})
	query, args := Compile(plan)
	assert.Contains(t, query, "WHERE (`latency_ms` BETWEEN ? AND ? AND `request_id` IS NOT NULL)")
	assert.Equal(t, []any{10.0, 200.0, 50, 0}, args)
}

func TestQuoteIdentStripsBackticks(t *testing.T) {
	assert.Equal(t, "`weird`", quoteIdent("we`ird"))
}
