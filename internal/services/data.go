package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/clickview/clickview/internal/engine"
	"github.com/clickview/clickview/internal/logger"
	"github.com/clickview/clickview/internal/storage"
)

// DataService runs the query pipeline: plan validation, compilation,
// execution, and result shaping.
type DataService struct {
	exec     *engine.Executor
	registry *engine.SchemaRegistry
	tables   *TableService
	store    *storage.Client
}

// NewDataService creates a new DataService
func NewDataService(exec *engine.Executor, registry *engine.SchemaRegistry, tables *TableService, store *storage.Client) *DataService {
	return &DataService{exec: exec, registry: registry, tables: tables, store: store}
}

// QueryRequest is a plan description optionally targeting a registered
// data source instead of a direct table name.
type QueryRequest struct {
	engine.PlanRequest
	DataSourceID string `json:"data_source_id,omitempty"`
}

// ChartRequest selects the x-axis group key for chart shaping. Empty X
// defaults to the first group key.
type ChartRequest struct {
	QueryRequest
	X string `json:"x,omitempty"`
}

// ExportRequest selects the export encoding. Limit of 0 exports every
// matching row. Upload stores the file instead of streaming it back.
type ExportRequest struct {
	QueryRequest
	Format engine.ExportFormat `json:"format,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Upload bool                `json:"upload,omitempty"`
}

// AggregationResult is the aggregate payload.
type AggregationResult struct {
	Columns   []string         `json:"columns"`
	Data      []map[string]any `json:"data"`
	TotalRows int              `json:"total_rows"`
}

// ExportFile describes an export uploaded to object storage.
type ExportFile struct {
	FileURL   string    `json:"file_url"`
	FileName  string    `json:"file_name"`
	RowCount  int64     `json:"row_count"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *DataService) plan(ctx context.Context, req QueryRequest) (*engine.QueryPlan, error) {
	if req.Table == "" && req.DataSourceID != "" {
		table, err := s.tables.ResolveDataSource(ctx, req.DataSourceID)
		if err != nil {
			return nil, err
		}
		req.Table = table
	}
	return engine.NewQueryPlan(ctx, s.registry, req.PlanRequest)
}

// Query returns one page of rows plus the total count of matching rows.
func (s *DataService) Query(ctx context.Context, req QueryRequest) (*engine.TablePage, error) {
	plan, err := s.plan(ctx, req)
	if err != nil {
		return nil, err
	}

	countSQL, countArgs := engine.CompileCount(plan)
	total, err := s.exec.Count(ctx, countSQL, countArgs...)
	if err != nil {
		return nil, err
	}

	query, args := engine.Compile(plan)
	stream, err := s.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	return engine.ShapeTable(stream, total, plan.Page(), plan.PageSize())
}

// CountRows returns the number of rows matching the plan's filter with no
// pagination applied.
func (s *DataService) CountRows(ctx context.Context, req QueryRequest) (uint64, error) {
	plan, err := s.plan(ctx, req)
	if err != nil {
		return 0, err
	}
	countSQL, countArgs := engine.CompileCount(plan)
	return s.exec.Count(ctx, countSQL, countArgs...)
}

// Aggregate runs a grouped aggregation and returns the result rows.
func (s *DataService) Aggregate(ctx context.Context, req QueryRequest) (*AggregationResult, error) {
	plan, err := s.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if !plan.Aggregated() {
		return nil, &engine.Error{Kind: engine.KindInvalidFilterValue, Message: "at least one aggregate is required"}
	}

	query, args := engine.Compile(plan)
	stream, err := s.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	data, err := engine.CollectRows(stream)
	if err != nil {
		return nil, err
	}
	return &AggregationResult{Columns: plan.OutputColumns(), Data: data, TotalRows: len(data)}, nil
}

// Chart runs a grouped aggregation and reshapes it into named series, one
// per aggregate alias, keyed by the chosen x group key.
func (s *DataService) Chart(ctx context.Context, req ChartRequest) (*engine.Chart, error) {
	plan, err := s.plan(ctx, req.QueryRequest)
	if err != nil {
		return nil, err
	}
	if !plan.Aggregated() {
		return nil, &engine.Error{Kind: engine.KindInvalidFilterValue, Message: "chart requests require at least one aggregate"}
	}
	keys := plan.GroupKeys()
	if len(keys) == 0 {
		return nil, &engine.Error{Kind: engine.KindInvalidFilterValue, Message: "chart requests require a group key for the x axis"}
	}
	x := req.X
	if x == "" {
		x = keys[0]
	} else {
		valid := false
		for _, key := range keys {
			if key == x {
				valid = true
				break
			}
		}
		if !valid {
			return nil, &engine.Error{Kind: engine.KindInvalidFilterValue, Message: fmt.Sprintf("x field %q is not a group key", x)}
		}
	}

	query, args := engine.Compile(plan)
	stream, err := s.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	return engine.ShapeChart(stream, x, plan.AggregateAliases())
}

// Export streams every matching row to w in the requested format. The
// stream holds the store cursor only while w is being written; cancelling
// ctx closes the cursor.
func (s *DataService) Export(ctx context.Context, req ExportRequest, w io.Writer) (int64, error) {
	plan, err := s.plan(ctx, req.QueryRequest)
	if err != nil {
		return 0, err
	}

	query, args := engine.CompileExport(plan, req.Limit)
	stream, err := s.exec.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	return engine.StreamExport(w, stream, req.Format)
}

// ExportToStorage streams an export into object storage and returns a
// presigned download URL. The upload consumes the row stream through a
// pipe, so the full result never sits in memory.
func (s *DataService) ExportToStorage(ctx context.Context, req ExportRequest) (*ExportFile, error) {
	if !s.store.Enabled() {
		return nil, storage.ErrDisabled
	}
	plan, err := s.plan(ctx, req.QueryRequest)
	if err != nil {
		return nil, err
	}

	query, args := engine.CompileExport(plan, req.Limit)
	stream, err := s.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	format := req.Format
	if format == "" {
		format = engine.FormatCSV
	}
	fileName := fmt.Sprintf("export_%s_%s.%s",
		uuid.New().String()[:8], time.Now().UTC().Format("20060102_150405"), format.Extension())
	key := "exports/" + fileName

	pr, pw := io.Pipe()
	var rowCount int64
	done := make(chan error, 1)
	go func() {
		n, err := engine.StreamExport(pw, stream, format)
		rowCount = n
		pw.CloseWithError(err)
		done <- err
	}()

	if err := s.store.PutObject(ctx, key, pr, -1, format.ContentType()); err != nil {
		pr.CloseWithError(err)
		<-done
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}
	if err := <-done; err != nil {
		return nil, err
	}

	const expiry = 24 * time.Hour
	fileURL, err := s.store.PresignedURL(ctx, key, expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign export url: %w", err)
	}

	logger.Info("export uploaded", "file", fileName, "rows", rowCount)
	return &ExportFile{
		FileURL:   fileURL,
		FileName:  fileName,
		RowCount:  rowCount,
		ExpiresAt: time.Now().UTC().Add(expiry),
	}, nil
}
