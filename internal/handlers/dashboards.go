package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clickview/clickview/internal/services"
)

// DashboardHandler exposes dashboard and widget endpoints.
type DashboardHandler struct {
	dashboardService *services.DashboardService
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// ListDashboards lists dashboards with pagination and optional search.
func (h *DashboardHandler) ListDashboards(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, err := h.dashboardService.ListDashboards(c.Request.Context(), page, pageSize, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateDashboard creates a new dashboard.
func (h *DashboardHandler) CreateDashboard(c *gin.Context) {
	var req services.CreateDashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	dashboard, err := h.dashboardService.CreateDashboard(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dashboard)
}

// GetDashboard retrieves a dashboard with its widgets.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	dashboard, err := h.dashboardService.GetDashboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "dashboard not found"})
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// UpdateDashboardRequest represents a dashboard update request
type UpdateDashboardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateDashboard updates dashboard name and description.
func (h *DashboardHandler) UpdateDashboard(c *gin.Context) {
	var req UpdateDashboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	dashboard, err := h.dashboardService.UpdateDashboard(c.Request.Context(), c.Param("id"), req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// DeleteDashboard removes a dashboard and its widgets.
func (h *DashboardHandler) DeleteDashboard(c *gin.Context) {
	if err := h.dashboardService.DeleteDashboard(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dashboard deleted"})
}

// ListWidgets lists a dashboard's widgets.
func (h *DashboardHandler) ListWidgets(c *gin.Context) {
	widgets, err := h.dashboardService.ListWidgets(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, widgets)
}

// CreateWidget adds a widget to a dashboard.
func (h *DashboardHandler) CreateWidget(c *gin.Context) {
	var req services.CreateWidgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	widget, err := h.dashboardService.CreateWidget(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, widget)
}

// DeleteWidget removes a widget from a dashboard.
func (h *DashboardHandler) DeleteWidget(c *gin.Context) {
	err := h.dashboardService.DeleteWidget(c.Request.Context(), c.Param("id"), c.Param("widgetId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "widget deleted"})
}
