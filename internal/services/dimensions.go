package services

import (
	"context"
	"strings"

	"github.com/clickview/clickview/internal/engine"
)

// DimensionService serves reference (dimension) data. A dimension maps to
// a registered table named dim_<dimension>; the registry remains the only
// identifier authority.
type DimensionService struct {
	exec     *engine.Executor
	registry *engine.SchemaRegistry
}

// NewDimensionService creates a new DimensionService
func NewDimensionService(exec *engine.Executor, registry *engine.SchemaRegistry) *DimensionService {
	return &DimensionService{exec: exec, registry: registry}
}

const dimensionPrefix = "dim_"

// ListDimensions returns the available dimension names.
func (s *DimensionService) ListDimensions(ctx context.Context) ([]string, error) {
	tables, err := s.registry.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	dims := make([]string, 0)
	for _, t := range tables {
		if strings.HasPrefix(t, dimensionPrefix) {
			dims = append(dims, strings.TrimPrefix(t, dimensionPrefix))
		}
	}
	return dims, nil
}

// Values returns the rows of a dimension table, optionally including
// inactive entries when the table carries an is_active flag.
func (s *DimensionService) Values(ctx context.Context, dimension string, includeInactive bool) ([]map[string]any, error) {
	desc, err := s.registry.Describe(ctx, dimensionPrefix+dimension)
	if err != nil {
		return nil, err
	}

	req := engine.PlanRequest{Table: desc.Name, PageSize: engine.MaxPageSize}
	if !includeInactive {
		if col, ok := desc.Column("is_active"); ok {
			// Dimension tables declare the flag as Bool or UInt8.
			var active any = true
			if col.Type == engine.TypeNumber {
				active = float64(1)
			}
			req.Filters = &engine.FilterInput{
				Field:    "is_active",
				Operator: engine.OpEq,
				Value:    active,
			}
		}
	}
	if _, ok := desc.Column("sort_order"); ok {
		req.Sort = append(req.Sort, engine.SortInput{Field: "sort_order"})
	}

	plan, err := engine.NewQueryPlan(ctx, s.registry, req)
	if err != nil {
		return nil, err
	}
	query, args := engine.Compile(plan)
	stream, err := s.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	return engine.CollectRows(stream)
}
