package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clickview/clickview/internal/engine"
	"github.com/clickview/clickview/internal/logger"
	"github.com/clickview/clickview/internal/services"
)

// DataHandler exposes the query, aggregate, chart, and export endpoints.
type DataHandler struct {
	dataService *services.DataService
}

// NewDataHandler creates a new DataHandler
func NewDataHandler(dataService *services.DataService) *DataHandler {
	return &DataHandler{dataService: dataService}
}

// Query returns one filtered, sorted page of rows plus the total count.
func (h *DataHandler) Query(c *gin.Context) {
	var req services.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	started := time.Now()
	page, err := h.dataService.Query(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	logger.Debug("query served", "table", req.Table, "rows", len(page.Rows), "duration", time.Since(started).String())
	c.JSON(http.StatusOK, page)
}

// Aggregate returns grouped aggregation rows.
func (h *DataHandler) Aggregate(c *gin.Context) {
	var req services.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.dataService.Aggregate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Chart returns the chart payload: named series keyed by group.
func (h *DataHandler) Chart(c *gin.Context) {
	var req services.ChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	chart, err := h.dataService.Chart(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chart)
}

// Export streams the matching rows as CSV or NDJSON, or uploads the file
// to object storage when upload is requested.
func (h *DataHandler) Export(c *gin.Context) {
	var req services.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Format == "" {
		req.Format = engine.FormatCSV
	}
	if req.Format != engine.FormatCSV && req.Format != engine.FormatNDJSON {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or ndjson"})
		return
	}

	if req.Upload {
		file, err := h.dataService.ExportToStorage(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, file)
		return
	}

	// Total-row hint goes out with the headers, so it is computed up front.
	total, err := h.dataService.CountRows(c.Request.Context(), req.QueryRequest)
	if err != nil {
		respondError(c, err)
		return
	}

	fileName := fmt.Sprintf("export_%s.%s", time.Now().UTC().Format("20060102_150405"), req.Format.Extension())
	c.Header("Content-Type", req.Format.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Header("X-Total-Rows", strconv.FormatUint(total, 10))
	c.Status(http.StatusOK)

	rows, err := h.dataService.Export(c.Request.Context(), req, c.Writer)
	if err != nil {
		// Headers are already out; all we can do is cut the stream short.
		logger.Error("export stream aborted", "table", req.Table, "rows", rows, "error", err.Error())
		c.Abort()
	}
}
