package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clickview/clickview/internal/engine"
)

// TableService exposes table metadata and the data_sources registry.
type TableService struct {
	exec     *engine.Executor
	registry *engine.SchemaRegistry
}

// NewTableService creates a new TableService
func NewTableService(exec *engine.Executor, registry *engine.SchemaRegistry) *TableService {
	return &TableService{exec: exec, registry: registry}
}

// TableMetadata describes a table with store-reported statistics.
type TableMetadata struct {
	TableName  string          `json:"table_name"`
	Engine     string          `json:"engine"`
	TotalRows  uint64          `json:"total_rows"`
	TotalBytes uint64          `json:"total_bytes"`
	Columns    []engine.Column `json:"columns"`
}

// TableSample is a bounded unfiltered preview of a table.
type TableSample struct {
	Columns  []engine.Column  `json:"columns"`
	Data     []map[string]any `json:"data"`
	RowCount int              `json:"row_count"`
}

// DataSource maps a stable id onto a table for query requests.
type DataSource struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	TableName   string          `json:"table_name"`
	Columns     []engine.Column `json:"columns,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateDataSourceRequest is the data source creation payload.
type CreateDataSourceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TableName   string `json:"table_name"`
}

// ListTables returns the registered table names.
func (s *TableService) ListTables(ctx context.Context) ([]string, error) {
	return s.registry.ListTables(ctx)
}

const tableStatsQuery = `SELECT engine, total_rows, total_bytes FROM system.tables WHERE database = currentDatabase() AND name = ?`

// GetTableMetadata returns schema and size statistics for one table.
func (s *TableService) GetTableMetadata(ctx context.Context, table string) (*TableMetadata, error) {
	desc, err := s.registry.Describe(ctx, table)
	if err != nil {
		return nil, err
	}

	meta := &TableMetadata{TableName: desc.Name, Columns: desc.Columns}
	stream, err := s.exec.Query(ctx, tableStatsQuery, desc.Name)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	if stream.Next() {
		if err := stream.Scan(&meta.Engine, &meta.TotalRows, &meta.TotalBytes); err != nil {
			return nil, fmt.Errorf("failed to scan table stats: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return meta, nil
}

// SampleTable returns up to limit unfiltered rows.
func (s *TableService) SampleTable(ctx context.Context, table string, limit int) (*TableSample, error) {
	desc, err := s.registry.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	data, err := s.registry.SampleRows(ctx, table, limit)
	if err != nil {
		return nil, err
	}
	return &TableSample{Columns: desc.Columns, Data: data, RowCount: len(data)}, nil
}

// RefreshSchema invalidates the cached schema snapshot.
func (s *TableService) RefreshSchema(ctx context.Context) error {
	s.registry.Invalidate()
	return s.registry.Refresh(ctx)
}

// CreateDataSource registers a data source for a table. The table must be
// known to the registry.
func (s *TableService) CreateDataSource(ctx context.Context, req CreateDataSourceRequest) (*DataSource, error) {
	desc, err := s.registry.Describe(ctx, req.TableName)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	err = s.exec.Exec(ctx,
		"INSERT INTO data_sources (id, name, description, table_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, req.Name, req.Description, desc.Name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create data source: %w", err)
	}
	return &DataSource{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		TableName:   desc.Name,
		Columns:     desc.Columns,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetDataSource retrieves a data source by id.
func (s *TableService) GetDataSource(ctx context.Context, id string) (*DataSource, error) {
	stream, err := s.exec.Query(ctx,
		"SELECT id, name, description, table_name, created_at, updated_at FROM data_sources FINAL WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("data source not found")
	}
	var ds DataSource
	if err := stream.Scan(&ds.ID, &ds.Name, &ds.Description, &ds.TableName, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan data source: %w", err)
	}
	if desc, err := s.registry.Describe(ctx, ds.TableName); err == nil {
		ds.Columns = desc.Columns
	}
	return &ds, nil
}

// ListDataSources lists all registered data sources.
func (s *TableService) ListDataSources(ctx context.Context) ([]DataSource, error) {
	stream, err := s.exec.Query(ctx,
		"SELECT id, name, description, table_name, created_at, updated_at FROM data_sources FINAL ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	sources := make([]DataSource, 0)
	for stream.Next() {
		var ds DataSource
		if err := stream.Scan(&ds.ID, &ds.Name, &ds.Description, &ds.TableName, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		sources = append(sources, ds)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return sources, nil
}

// DeleteDataSource removes a data source.
func (s *TableService) DeleteDataSource(ctx context.Context, id string) error {
	if err := s.exec.Exec(ctx, "ALTER TABLE data_sources DELETE WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	return nil
}

// ResolveDataSource returns the table name a data source points at.
func (s *TableService) ResolveDataSource(ctx context.Context, id string) (string, error) {
	ds, err := s.GetDataSource(ctx, id)
	if err != nil {
		return "", err
	}
	return ds.TableName, nil
}
