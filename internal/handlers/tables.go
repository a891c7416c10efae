package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clickview/clickview/internal/services"
)

// TableHandler exposes table metadata and data source endpoints.
type TableHandler struct {
	tableService *services.TableService
}

// NewTableHandler creates a new TableHandler
func NewTableHandler(tableService *services.TableService) *TableHandler {
	return &TableHandler{tableService: tableService}
}

// ListTables lists the registered table names.
func (h *TableHandler) ListTables(c *gin.Context) {
	tables, err := h.tableService.ListTables(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

// GetTable returns schema and size statistics for one table.
func (h *TableHandler) GetTable(c *gin.Context) {
	meta, err := h.tableService.GetTableMetadata(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// SampleTable returns a bounded unfiltered preview of a table.
func (h *TableHandler) SampleTable(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	sample, err := h.tableService.SampleTable(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sample)
}

// RefreshSchema rebuilds the schema registry snapshot.
func (h *TableHandler) RefreshSchema(c *gin.Context) {
	if err := h.tableService.RefreshSchema(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schema refreshed"})
}

// ListDataSources lists registered data sources.
func (h *TableHandler) ListDataSources(c *gin.Context) {
	sources, err := h.tableService.ListDataSources(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sources)
}

// CreateDataSource registers a data source for a table.
func (h *TableHandler) CreateDataSource(c *gin.Context) {
	var req services.CreateDataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Name == "" || req.TableName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and table_name are required"})
		return
	}

	ds, err := h.tableService.CreateDataSource(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ds)
}

// GetDataSource retrieves a data source by id.
func (h *TableHandler) GetDataSource(c *gin.Context) {
	ds, err := h.tableService.GetDataSource(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "data source not found"})
		return
	}
	c.JSON(http.StatusOK, ds)
}

// DeleteDataSource removes a data source.
func (h *TableHandler) DeleteDataSource(c *gin.Context) {
	if err := h.tableService.DeleteDataSource(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "data source deleted"})
}
