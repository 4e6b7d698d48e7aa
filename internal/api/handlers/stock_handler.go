package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/snackhouse/delivery/internal/services"
	"example.com/snackhouse/delivery/internal/tracing"
)

// StockHandler handles stock-related HTTP requests
type StockHandler struct {
	stockService *services.StockService
	tracer       tracing.Tracer
}

// NewStockHandler creates a new stock handler
func NewStockHandler(stockService *services.StockService, tracer tracing.Tracer) *StockHandler {
	return &StockHandler{
		stockService: stockService,
		tracer:       tracer,
	}
}

// CreateItemRequest registers a new stock item
type CreateItemRequest struct {
	Name      string  `json:"name" binding:"required"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// UpdateItemRequest partially updates a stock item
type UpdateItemRequest struct {
	Name      *string  `json:"name"`
	Quantity  *int     `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
}

// AdjustQuantityRequest changes a stock item quantity
type AdjustQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// RegisterRoutes registers the stock routes on the given group
func (h *StockHandler) RegisterRoutes(r *gin.RouterGroup) {
	stock := r.Group("/stock")
	{
		stock.GET("", h.ListItems)
		stock.POST("", h.CreateItem)
		stock.GET("/low", h.LowStock)
		stock.POST("/low/notify", h.NotifyLowStock)
		stock.GET("/:id", h.GetItem)
		stock.PUT("/:id", h.UpdateItem)
		stock.DELETE("/:id", h.DeleteItem)
		stock.POST("/:id/add", h.AddQuantity)
		stock.POST("/:id/remove", h.RemoveQuantity)
	}
}

// ListItems returns all stock items ordered by name
func (h *StockHandler) ListItems(c *gin.Context) {
	items, err := h.stockService.ListItems(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list stock items")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetItem returns a single stock item
func (h *StockHandler) GetItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	item, err := h.stockService.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// CreateItem registers a new stock item
func (h *StockHandler) CreateItem(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-stock-item")
	defer h.tracer.EndTransaction(txn)

	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	item, err := h.stockService.CreateItem(c.Request.Context(), req.Name, req.Quantity, req.UnitPrice)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateItem applies a partial update to a stock item
func (h *StockHandler) UpdateItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.stockService.UpdateItem(c.Request.Context(), id, services.UpdateItemInput{
		Name:      req.Name,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteItem removes a stock item
func (h *StockHandler) DeleteItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.stockService.DeleteItem(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AddQuantity increments a stock item quantity
func (h *StockHandler) AddQuantity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req AdjustQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.stockService.AddQuantity(c.Request.Context(), id, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// RemoveQuantity decrements a stock item quantity, refusing to go negative
func (h *StockHandler) RemoveQuantity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req AdjustQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.stockService.RemoveQuantity(c.Request.Context(), id, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// LowStock lists items at or below the given threshold
func (h *StockHandler) LowStock(c *gin.Context) {
	threshold := 0
	if raw := c.Query("threshold"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
			return
		}
		threshold = parsed
	}

	items, err := h.stockService.LowStock(c.Request.Context(), threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// NotifyLowStock announces the low stock items on the voice device
func (h *StockHandler) NotifyLowStock(c *gin.Context) {
	threshold := 0
	if raw := c.Query("threshold"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
			return
		}
		threshold = parsed
	}

	count, err := h.stockService.NotifyLowStock(c.Request.Context(), threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": count})
}
