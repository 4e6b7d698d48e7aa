package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/snackhouse/delivery/internal/services"
	"example.com/snackhouse/delivery/internal/tracing"
)

// ReportHandler handles sales report HTTP requests
type ReportHandler struct {
	reportService *services.ReportService
	tracer        tracing.Tracer
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *services.ReportService, tracer tracing.Tracer) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		tracer:        tracer,
	}
}

// RegisterRoutes registers the report routes on the given group
func (h *ReportHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reports", h.GetReport)
}

// GetReport aggregates deliveries and revenue for the requested period
func (h *ReportHandler) GetReport(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-report")
	defer h.tracer.EndTransaction(txn)

	period := c.DefaultQuery("period", services.PeriodWeek)
	h.tracer.AddAttribute(txn, "period", period)

	month, year := 0, 0
	if period == services.PeriodMonthSpecific {
		var err error
		month, err = strconv.Atoi(c.Query("month"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month"})
			return
		}
		year, err = strconv.Atoi(c.Query("year"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
	}

	report, err := h.reportService.GetReport(c.Request.Context(), period, month, year)
	if err != nil {
		log.Error().Err(err).Str("period", period).Msg("Failed to build report")
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
