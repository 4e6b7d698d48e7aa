package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"example.com/snackhouse/delivery/internal/notifier"
	"example.com/snackhouse/delivery/internal/repositories"
	"example.com/snackhouse/delivery/internal/services"
)

// parseID extracts a numeric :id path parameter.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// respondError maps domain errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrInsufficientStock),
		errors.Is(err, repositories.ErrDuplicateName),
		errors.Is(err, repositories.ErrNotScheduled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrMissingFields),
		errors.Is(err, services.ErrBadLeadTime),
		errors.Is(err, services.ErrTooSoon),
		errors.Is(err, services.ErrBadQuantity),
		errors.Is(err, services.ErrBadPeriod),
		errors.Is(err, services.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, notifier.ErrNotConfigured),
		errors.Is(err, notifier.ErrMalformedCredential):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrSearchDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
