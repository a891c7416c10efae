package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clickview/clickview/internal/logger"
	"github.com/clickview/clickview/internal/storage"
)

const exportPrefix = "exports/"

// ExportsHandler manages export files previously uploaded to object storage.
type ExportsHandler struct {
	store *storage.Client
}

// NewExportsHandler creates a new ExportsHandler
func NewExportsHandler(store *storage.Client) *ExportsHandler {
	return &ExportsHandler{store: store}
}

// ListExports lists uploaded export files.
func (h *ExportsHandler) ListExports(c *gin.Context) {
	objects, err := h.store.ListObjects(c.Request.Context(), exportPrefix)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exports": objects})
}

// DownloadExport streams one uploaded export file back to the client.
func (h *ExportsHandler) DownloadExport(c *gin.Context) {
	name := c.Param("name")
	result, err := h.store.GetObject(c.Request.Context(), exportPrefix+name)
	if err != nil {
		respondError(c, err)
		return
	}
	defer result.Reader.Close()

	c.Header("Content-Type", result.ContentType)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Length", strconv.FormatInt(result.Size, 10))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, result.Reader); err != nil {
		logger.Error("export download aborted", "file", name, "error", err.Error())
		c.Abort()
	}
}

// DeleteExport removes an uploaded export file.
func (h *ExportsHandler) DeleteExport(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.DeleteObject(c.Request.Context(), exportPrefix+name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "export deleted"})
}
