package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clickview/clickview/internal/engine"
)

// DashboardService manages dashboards and their widgets, stored in
// metadata tables next to the analytical data.
type DashboardService struct {
	exec *engine.Executor
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(exec *engine.Executor) *DashboardService {
	return &DashboardService{exec: exec}
}

// Dashboard is a named collection of widgets.
type Dashboard struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Widgets     []Widget  `json:"widgets,omitempty"`
}

// Widget is one chart on a dashboard. Plan stores the serialized chart
// request rendered through the data pipeline.
type Widget struct {
	ID          string          `json:"id"`
	DashboardID string          `json:"dashboard_id"`
	Title       string          `json:"title"`
	ChartType   string          `json:"chart_type"`
	Plan        json.RawMessage `json:"plan"`
	Position    int32           `json:"position"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateDashboardRequest is the dashboard creation payload.
type CreateDashboardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"is_public,omitempty"`
}

// CreateWidgetRequest is the widget creation payload.
type CreateWidgetRequest struct {
	Title     string          `json:"title"`
	ChartType string          `json:"chart_type"`
	Plan      json.RawMessage `json:"plan"`
	Position  int32           `json:"position,omitempty"`
}

// DashboardList is a paginated dashboard listing.
type DashboardList struct {
	Items    []Dashboard `json:"items"`
	Total    uint64      `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// CreateDashboard creates a new dashboard.
func (s *DashboardService) CreateDashboard(ctx context.Context, req CreateDashboardRequest) (*Dashboard, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	id := uuid.New().String()
	now := time.Now().UTC()
	err := s.exec.Exec(ctx,
		"INSERT INTO dashboards (id, name, description, is_public, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, req.Name, req.Description, req.IsPublic, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}
	return &Dashboard{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
		Widgets:     []Widget{},
	}, nil
}

// GetDashboard retrieves a dashboard with its widgets.
func (s *DashboardService) GetDashboard(ctx context.Context, id string) (*Dashboard, error) {
	d, err := s.getDashboard(ctx, id)
	if err != nil {
		return nil, err
	}
	widgets, err := s.ListWidgets(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Widgets = widgets
	return d, nil
}

func (s *DashboardService) getDashboard(ctx context.Context, id string) (*Dashboard, error) {
	stream, err := s.exec.Query(ctx,
		"SELECT id, name, description, is_public, created_at, updated_at FROM dashboards FINAL WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("dashboard not found")
	}
	var d Dashboard
	if err := stream.Scan(&d.ID, &d.Name, &d.Description, &d.IsPublic, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan dashboard: %w", err)
	}
	return &d, nil
}

// ListDashboards lists dashboards with pagination and optional name search.
func (s *DashboardService) ListDashboards(ctx context.Context, page, pageSize int, search string) (*DashboardList, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	where := ""
	var args []any
	if search != "" {
		where = " WHERE lower(name) LIKE lower(?)"
		args = append(args, "%"+search+"%")
	}

	total, err := s.exec.Count(ctx, "SELECT count() FROM dashboards FINAL"+where, args...)
	if err != nil {
		return nil, err
	}

	listArgs := append(args, pageSize, (page-1)*pageSize)
	stream, err := s.exec.Query(ctx,
		"SELECT id, name, description, is_public, created_at, updated_at FROM dashboards FINAL"+where+
			" ORDER BY created_at DESC LIMIT ? OFFSET ?", listArgs...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	items := make([]Dashboard, 0)
	for stream.Next() {
		var d Dashboard
		if err := stream.Scan(&d.ID, &d.Name, &d.Description, &d.IsPublic, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dashboard: %w", err)
		}
		items = append(items, d)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &DashboardList{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// UpdateDashboard updates dashboard name and description.
func (s *DashboardService) UpdateDashboard(ctx context.Context, id, name, description string) (*Dashboard, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	current, err := s.GetDashboard(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	err = s.exec.Exec(ctx,
		"INSERT INTO dashboards (id, name, description, is_public, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, name, description, current.IsPublic, current.CreatedAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update dashboard: %w", err)
	}
	current.Name = name
	current.Description = description
	current.UpdatedAt = now
	return current, nil
}

// DeleteDashboard removes a dashboard and its widgets.
func (s *DashboardService) DeleteDashboard(ctx context.Context, id string) error {
	if err := s.exec.Exec(ctx, "ALTER TABLE widgets DELETE WHERE dashboard_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete widgets: %w", err)
	}
	if err := s.exec.Exec(ctx, "ALTER TABLE dashboards DELETE WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete dashboard: %w", err)
	}
	return nil
}

// CreateWidget adds a widget to a dashboard.
func (s *DashboardService) CreateWidget(ctx context.Context, dashboardID string, req CreateWidgetRequest) (*Widget, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if len(req.Plan) == 0 || !json.Valid(req.Plan) {
		return nil, fmt.Errorf("plan must be a valid JSON document")
	}
	if _, err := s.GetDashboard(ctx, dashboardID); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	err := s.exec.Exec(ctx,
		"INSERT INTO widgets (id, dashboard_id, title, chart_type, plan, position, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, dashboardID, req.Title, req.ChartType, string(req.Plan), req.Position, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create widget: %w", err)
	}
	return &Widget{
		ID:          id,
		DashboardID: dashboardID,
		Title:       req.Title,
		ChartType:   req.ChartType,
		Plan:        req.Plan,
		Position:    req.Position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ListWidgets lists a dashboard's widgets in position order.
func (s *DashboardService) ListWidgets(ctx context.Context, dashboardID string) ([]Widget, error) {
	stream, err := s.exec.Query(ctx,
		"SELECT id, dashboard_id, title, chart_type, plan, position, created_at, updated_at FROM widgets FINAL WHERE dashboard_id = ? ORDER BY position, created_at",
		dashboardID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	widgets := make([]Widget, 0)
	for stream.Next() {
		var w Widget
		var plan string
		if err := stream.Scan(&w.ID, &w.DashboardID, &w.Title, &w.ChartType, &plan, &w.Position, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan widget: %w", err)
		}
		w.Plan = json.RawMessage(plan)
		widgets = append(widgets, w)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return widgets, nil
}

// DeleteWidget removes a widget.
func (s *DashboardService) DeleteWidget(ctx context.Context, dashboardID, widgetID string) error {
	err := s.exec.Exec(ctx, "ALTER TABLE widgets DELETE WHERE id = ? AND dashboard_id = ?", widgetID, dashboardID)
	if err != nil {
		return fmt.Errorf("failed to delete widget: %w", err)
	}
	return nil
}
