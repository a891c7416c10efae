package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clickview/clickview/internal/services"
)

// DimensionHandler exposes reference-data endpoints.
type DimensionHandler struct {
	dimensionService *services.DimensionService
}

// NewDimensionHandler creates a new DimensionHandler
func NewDimensionHandler(dimensionService *services.DimensionService) *DimensionHandler {
	return &DimensionHandler{dimensionService: dimensionService}
}

// ListDimensions lists the available dimension names.
func (h *DimensionHandler) ListDimensions(c *gin.Context) {
	dims, err := h.dimensionService.ListDimensions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dimensions": dims})
}

// GetDimensionValues returns the rows of one dimension table.
func (h *DimensionHandler) GetDimensionValues(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	values, err := h.dimensionService.Values(c.Request.Context(), c.Param("name"), includeInactive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"values": values})
}
