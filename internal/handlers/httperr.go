package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clickview/clickview/internal/engine"
	"github.com/clickview/clickview/internal/logger"
	"github.com/clickview/clickview/internal/storage"
)

// respondError maps an error onto a transport status. Engine validation
// errors become 4xx with their kind exposed; store failures keep their
// detail out of the response body.
func respondError(c *gin.Context, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		status := statusForKind(engErr.Kind)
		if status >= http.StatusInternalServerError {
			logger.Error("query failed", "kind", string(engErr.Kind), "error", err.Error())
		}
		c.JSON(status, gin.H{"error": string(engErr.Kind), "message": engErr.Message})
		return
	}
	if errors.Is(err, storage.ErrDisabled) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "storage_disabled", "message": err.Error()})
		return
	}
	logger.Error("request failed", "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
}

func statusForKind(kind engine.ErrorKind) int {
	switch kind {
	case engine.KindUnknownTable:
		return http.StatusNotFound
	case engine.KindUnknownField, engine.KindInvalidFilterValue, engine.KindTypeMismatch,
		engine.KindFilterTooDeep, engine.KindInvalidAggregateParameter, engine.KindAmbiguousAggregation:
		return http.StatusBadRequest
	case engine.KindQueryTimeout:
		return http.StatusGatewayTimeout
	case engine.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
