package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/painscope/painscope/pkg/services"
)

// writeServiceError maps service-layer errors to HTTP error responses.
func writeServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "invalid request",
			Issues: validErr.Issues,
		})
		return
	}
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "search not found"})
		return
	}
	if errors.Is(err, services.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service temporarily unavailable"})
		return
	}

	slog.Error("Unexpected service error", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
