package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/constants"
	apperrors "catalog-graph/backend/pkg/errors"
)

// Response is the envelope every /api endpoint answers with.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     interface{} `json:"error"`
	Timestamp string      `json:"timestamp"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(constants.TimestampLayout),
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Success:   false,
		Error:     message,
		Timestamp: time.Now().UTC().Format(constants.TimestampLayout),
	})
}

// handleServiceError converts service errors to HTTP responses.
func handleServiceError(c *gin.Context, log *zap.Logger, err error) {
	var notFound *apperrors.ErrNotFound
	var invalid *apperrors.ErrValidation

	switch {
	case errors.As(err, &invalid):
		respondError(c, http.StatusBadRequest, invalid.Message)
	case errors.As(err, &notFound):
		respondError(c, http.StatusNotFound, notFound.Entity+" not found")
	case apperrors.IsRetryable(err):
		log.Warn("Graph store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "An internal error occurred")
	}
}
