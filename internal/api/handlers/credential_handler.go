package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/snackhouse/delivery/internal/repositories"
)

// CredentialHandler manages the stored voice device credential
type CredentialHandler struct {
	credentials repositories.CredentialRepository
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(credentials repositories.CredentialRepository) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

// ConfigureRequest carries the voice credential in TOKEN:DEVICE_ID form
type ConfigureRequest struct {
	AccessCode string `json:"access_code" binding:"required"`
}

// RegisterRoutes registers the credential routes on the given group
func (h *CredentialHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/status", h.Status)
	r.POST("/configure", h.Configure)
	r.GET("/logout", h.Clear)
}

// Status reports whether a voice credential is stored
func (h *CredentialHandler) Status(c *gin.Context) {
	_, err := h.credentials.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"configured": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": true})
}

// Configure stores the voice device credential
func (h *CredentialHandler) Configure(c *gin.Context) {
	var req ConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := strings.TrimSpace(req.AccessCode)
	parts := strings.SplitN(code, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "access code must be in TOKEN:DEVICE_ID format"})
		return
	}

	if err := h.credentials.Save(c.Request.Context(), code, nil); err != nil {
		log.Error().Err(err).Msg("Failed to store voice credential")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credential"})
		return
	}

	log.Info().Msg("Voice credential configured")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Clear removes the stored voice credential
func (h *CredentialHandler) Clear(c *gin.Context) {
	if err := h.credentials.Clear(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to clear voice credential")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear credential"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
