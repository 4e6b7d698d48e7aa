package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/snackhouse/delivery/internal/metrics"
)

// MetricsHandler exposes the in-process metrics snapshot
type MetricsHandler struct {
	metrics *metrics.Metrics
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(m *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: m}
}

// RegisterRoutes registers the metrics route
func (h *MetricsHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/metrics", h.GetMetrics)
}

// GetMetrics returns all counters, gauges and error rates
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetAllMetrics())
}
