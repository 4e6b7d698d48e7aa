package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snackhouse/delivery/internal/notifier"
	"example.com/snackhouse/delivery/internal/services"
	"example.com/snackhouse/delivery/internal/tracing"
)

// DeliveryHandler handles delivery-related HTTP requests
type DeliveryHandler struct {
	deliveryService *services.DeliveryService
	tracer          tracing.Tracer
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(deliveryService *services.DeliveryService, tracer tracing.Tracer) *DeliveryHandler {
	return &DeliveryHandler{
		deliveryService: deliveryService,
		tracer:          tracer,
	}
}

// CreateDeliveryRequest represents an incoming delivery registration
type CreateDeliveryRequest struct {
	Date            string             `json:"date" binding:"required"`
	Time            string             `json:"time" binding:"required"`
	Description     string             `json:"description" binding:"required"`
	LeadTimeMinutes int                `json:"lead_time_minutes"`
	Items           []OrderItemRequest `json:"items"`
}

// OrderItemRequest is one stock position consumed by a delivery
type OrderItemRequest struct {
	StockItemID uint `json:"stock_item_id" binding:"required"`
	Quantity    int  `json:"quantity" binding:"required"`
}

// RegisterRoutes registers the delivery routes on the given group
func (h *DeliveryHandler) RegisterRoutes(r *gin.RouterGroup) {
	deliveries := r.Group("/deliveries")
	{
		deliveries.GET("", h.ListDeliveries)
		deliveries.POST("", h.CreateDelivery)
		deliveries.GET("/search", h.SearchDeliveries)
		deliveries.POST("/test-notification", h.SendTestNotification)
		deliveries.GET("/:id", h.GetDelivery)
		deliveries.DELETE("/:id", h.DeleteDelivery)
		deliveries.POST("/:id/complete", h.CompleteDelivery)
	}
}

// ListDeliveries returns all deliveries, newest first
func (h *DeliveryHandler) ListDeliveries(c *gin.Context) {
	deliveries, err := h.deliveryService.ListDeliveries(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list deliveries")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deliveries)
}

// GetDelivery returns one delivery with its order lines
func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	delivery, err := h.deliveryService.GetDelivery(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

// CreateDelivery registers a new delivery and schedules its reminder
func (h *DeliveryHandler) CreateDelivery(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-delivery")
	defer h.tracer.EndTransaction(txn)

	var req CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "date", req.Date)
	h.tracer.AddAttribute(txn, "time", req.Time)

	input := services.CreateDeliveryInput{
		Date:            req.Date,
		TimeOfDay:       req.Time,
		Description:     req.Description,
		LeadTimeMinutes: req.LeadTimeMinutes,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, services.OrderItemInput{
			StockItemID: item.StockItemID,
			Quantity:    item.Quantity,
		})
	}

	result, err := h.deliveryService.CreateDelivery(c.Request.Context(), input)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"delivery":            result.Delivery,
		"reminder_scheduled":  result.ReminderScheduled,
		"reminder_configured": result.ReminderConfigured,
	})
}

// CompleteDelivery marks a scheduled delivery as completed
func (h *DeliveryHandler) CompleteDelivery(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.deliveryService.CompleteDelivery(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteDelivery removes a delivery and cancels its pending reminder
func (h *DeliveryHandler) DeleteDelivery(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.deliveryService.DeleteDelivery(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendTestNotification fires a test announcement on the voice device
func (h *DeliveryHandler) SendTestNotification(c *gin.Context) {
	err := h.deliveryService.SendTestNotification(c.Request.Context())
	if err != nil {
		if errors.Is(err, notifier.ErrNotConfigured) || errors.Is(err, notifier.ErrMalformedCredential) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Test notification failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SearchDeliveries performs a full-text search over completed deliveries
func (h *DeliveryHandler) SearchDeliveries(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	results, err := h.deliveryService.SearchDeliveries(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
