package engine

import (
	"context"
	"fmt"
)

// AggregateFunc is the closed set of aggregate functions.
type AggregateFunc string

const (
	AggCount     AggregateFunc = "count"
	AggSum       AggregateFunc = "sum"
	AggAvg       AggregateFunc = "avg"
	AggMin       AggregateFunc = "min"
	AggMax       AggregateFunc = "max"
	AggUniqExact AggregateFunc = "uniqExact"
	AggMedian    AggregateFunc = "median"
	AggQuantile  AggregateFunc = "quantile"
)

var aggregateFuncs = map[AggregateFunc]bool{
	AggCount: true, AggSum: true, AggAvg: true, AggMin: true,
	AggMax: true, AggUniqExact: true, AggMedian: true, AggQuantile: true,
}

// TimeGranularity selects the ClickHouse bucketing function for
// time-based grouping.
type TimeGranularity string

const (
	GranMinute  TimeGranularity = "minute"
	GranHour    TimeGranularity = "hour"
	GranDay     TimeGranularity = "day"
	GranWeek    TimeGranularity = "week"
	GranMonth   TimeGranularity = "month"
	GranQuarter TimeGranularity = "quarter"
	GranYear    TimeGranularity = "year"
)

var timeFunctions = map[TimeGranularity]string{
	GranMinute:  "toStartOfMinute",
	GranHour:    "toStartOfHour",
	GranDay:     "toStartOfDay",
	GranWeek:    "toStartOfWeek",
	GranMonth:   "toStartOfMonth",
	GranQuarter: "toStartOfQuarter",
	GranYear:    "toStartOfYear",
}

// TimeBucketAlias is the output column name of a time-bucketed group key.
const TimeBucketAlias = "time_bucket"

// SortInput is a raw client-supplied sort key.
type SortInput struct {
	Field string `json:"field"`
	Order string `json:"order,omitempty"` // asc (default) or desc
}

// AggregateInput is a raw client-supplied aggregate spec.
type AggregateInput struct {
	Function  AggregateFunc `json:"function"`
	Field     string        `json:"field,omitempty"`
	Parameter float64       `json:"parameter,omitempty"` // quantile fraction
	Alias     string        `json:"alias,omitempty"`
}

// PlanRequest is the deserialized, not-yet-validated plan description
// handed in by the transport layer.
type PlanRequest struct {
	Table           string           `json:"table"`
	Columns         []string         `json:"columns,omitempty"`
	Filters         *FilterInput     `json:"filters,omitempty"`
	Sort            []SortInput      `json:"sort,omitempty"`
	GroupBy         []string         `json:"group_by,omitempty"`
	Aggregates      []AggregateInput `json:"aggregates,omitempty"`
	TimeColumn      string           `json:"time_column,omitempty"`
	TimeGranularity TimeGranularity  `json:"time_granularity,omitempty"`
	Page            int              `json:"page,omitempty"`
	PageSize        int              `json:"page_size,omitempty"`
}

// SortSpec is a validated sort key.
type SortSpec struct {
	Field string
	Desc  bool
}

// AggregateSpec is a validated aggregate. Param is only meaningful for
// quantile and is compiled inline as a literal.
type AggregateSpec struct {
	Func  AggregateFunc
	Field string
	Param float64
	Alias string
}

// timeBucket is a validated time-grouping expression.
type timeBucket struct {
	Column      string
	Granularity TimeGranularity
}

// Pagination bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// QueryPlan is an immutable, fully validated description of one request.
// It can only be constructed through NewQueryPlan, so QueryBuilder never
// sees an identifier that has not passed the registry whitelist.
type QueryPlan struct {
	table      *TableDescriptor
	columns    []string
	filter     *FilterGroup
	sorts      []SortSpec
	groupBy    []string
	aggregates []AggregateSpec
	bucket     *timeBucket
	page       int
	pageSize   int
}

// Table returns the target table descriptor.
func (p *QueryPlan) Table() *TableDescriptor { return p.table }

// Filter returns the validated filter group, nil when unfiltered.
func (p *QueryPlan) Filter() *FilterGroup { return p.filter }

// Page returns the 1-based page number.
func (p *QueryPlan) Page() int { return p.page }

// PageSize returns the page size.
func (p *QueryPlan) PageSize() int { return p.pageSize }

// Aggregated reports whether the plan carries aggregates.
func (p *QueryPlan) Aggregated() bool { return len(p.aggregates) > 0 }

// OutputColumns returns the result column names in select order.
func (p *QueryPlan) OutputColumns() []string {
	if !p.Aggregated() {
		if len(p.columns) > 0 {
			return p.columns
		}
		names := make([]string, len(p.table.Columns))
		for i, c := range p.table.Columns {
			names[i] = c.Name
		}
		return names
	}
	var names []string
	if p.bucket != nil {
		names = append(names, TimeBucketAlias)
	}
	names = append(names, p.groupBy...)
	for _, agg := range p.aggregates {
		names = append(names, agg.Alias)
	}
	return names
}

// AggregateAliases returns the output aliases of all aggregates in order.
func (p *QueryPlan) AggregateAliases() []string {
	aliases := make([]string, len(p.aggregates))
	for i, agg := range p.aggregates {
		aliases[i] = agg.Alias
	}
	return aliases
}

// GroupKeys returns the group-by output columns, time bucket first.
func (p *QueryPlan) GroupKeys() []string {
	var keys []string
	if p.bucket != nil {
		keys = append(keys, TimeBucketAlias)
	}
	return append(keys, p.groupBy...)
}

// NewQueryPlan validates a raw plan description against the registry and
// builds an immutable plan. All identifier, operator, value, and aggregate
// checks happen here; compilation cannot fail afterwards.
func NewQueryPlan(ctx context.Context, reg *SchemaRegistry, req PlanRequest) (*QueryPlan, error) {
	desc, err := reg.Describe(ctx, req.Table)
	if err != nil {
		return nil, err
	}
	return newPlan(desc, req)
}

func newPlan(desc *TableDescriptor, req PlanRequest) (*QueryPlan, error) {
	plan := &QueryPlan{table: desc}

	for _, name := range req.Columns {
		if _, ok := desc.Column(name); !ok {
			return nil, errUnknownField(desc.Name, name)
		}
		plan.columns = append(plan.columns, name)
	}

	filter, err := BuildFilter(desc, req.Filters)
	if err != nil {
		return nil, err
	}
	plan.filter = filter

	for _, s := range req.Sort {
		if _, ok := desc.Column(s.Field); !ok {
			return nil, errUnknownField(desc.Name, s.Field)
		}
		switch s.Order {
		case "", "asc", "ASC":
			plan.sorts = append(plan.sorts, SortSpec{Field: s.Field})
		case "desc", "DESC":
			plan.sorts = append(plan.sorts, SortSpec{Field: s.Field, Desc: true})
		default:
			return nil, errInvalidFilterValue("unknown sort order %q, expected asc or desc", s.Order)
		}
	}

	for _, name := range req.GroupBy {
		if _, ok := desc.Column(name); !ok {
			return nil, errUnknownField(desc.Name, name)
		}
		plan.groupBy = append(plan.groupBy, name)
	}

	if req.TimeColumn != "" || req.TimeGranularity != "" {
		col, ok := desc.Column(req.TimeColumn)
		if !ok {
			return nil, errUnknownField(desc.Name, req.TimeColumn)
		}
		if col.Type != TypeDatetime {
			return nil, errTypeMismatch(col.Name, TypeDatetime, col.Type)
		}
		if _, ok := timeFunctions[req.TimeGranularity]; !ok {
			return nil, errInvalidFilterValue("unknown time granularity %q", req.TimeGranularity)
		}
		plan.bucket = &timeBucket{Column: col.Name, Granularity: req.TimeGranularity}
	}

	for _, agg := range req.Aggregates {
		spec, err := buildAggregate(desc, agg)
		if err != nil {
			return nil, err
		}
		plan.aggregates = append(plan.aggregates, *spec)
	}

	// With aggregates present, every plainly selected column must be a
	// group key, otherwise the result would be ambiguous.
	if plan.Aggregated() {
		grouped := make(map[string]bool, len(plan.groupBy))
		for _, g := range plan.groupBy {
			grouped[g] = true
		}
		for _, name := range plan.columns {
			if !grouped[name] {
				return nil, errAmbiguousAggregation(name)
			}
		}
	}

	plan.page = req.Page
	if plan.page == 0 {
		plan.page = 1
	}
	if plan.page < 1 {
		return nil, errInvalidFilterValue("page must be >= 1, got %d", req.Page)
	}
	plan.pageSize = req.PageSize
	if plan.pageSize == 0 {
		plan.pageSize = DefaultPageSize
	}
	if plan.pageSize < 1 || plan.pageSize > MaxPageSize {
		return nil, errInvalidFilterValue("page_size must be in 1..%d, got %d", MaxPageSize, req.PageSize)
	}

	return plan, nil
}

func buildAggregate(desc *TableDescriptor, input AggregateInput) (*AggregateSpec, error) {
	if !aggregateFuncs[input.Function] {
		return nil, errInvalidAggregateParameter("unknown aggregate function %q", input.Function)
	}
	spec := &AggregateSpec{Func: input.Function, Field: input.Field, Param: input.Parameter, Alias: input.Alias}

	if input.Function == AggCount {
		spec.Field = ""
	} else {
		if input.Field == "" {
			return nil, errInvalidAggregateParameter("aggregate %q requires a target field", input.Function)
		}
		if _, ok := desc.Column(input.Field); !ok {
			return nil, errUnknownField(desc.Name, input.Field)
		}
	}

	if input.Function == AggQuantile {
		if input.Parameter < 0 || input.Parameter > 1 {
			return nil, errInvalidAggregateParameter("quantile parameter must be in [0,1], got %v", input.Parameter)
		}
	} else if input.Parameter != 0 {
		return nil, errInvalidAggregateParameter("aggregate %q takes no parameter", input.Function)
	}

	if spec.Alias == "" {
		if spec.Field == "" {
			spec.Alias = string(spec.Func)
		} else {
			spec.Alias = fmt.Sprintf("%s_%s", spec.Func, spec.Field)
		}
	}
	return spec, nil
}
