package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snackhouse/delivery/internal/services"
	"example.com/snackhouse/delivery/internal/tracing"
)

// AuthHandler handles operator login and session HTTP requests
type AuthHandler struct {
	authService *services.AuthService
	tracer      tracing.Tracer
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, tracer tracing.Tracer) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tracer:      tracer,
	}
}

// LoginRequest carries the operator password
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest carries the current and next operator password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// RegisterPublicRoutes registers the routes reachable without a session
func (h *AuthHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.Login)
}

// RegisterProtectedRoutes registers the routes that require a session
func (h *AuthHandler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/session", h.Session)
	r.POST("/logout", h.Logout)
	r.POST("/password", h.ChangePassword)
}

// Login verifies the operator password and issues a session token
func (h *AuthHandler) Login(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-login")
	defer h.tracer.EndTransaction(txn)

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPassword) || errors.Is(err, services.ErrNoOperator) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
			return
		}
		log.Error().Err(err).Msg("Login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Session confirms the current session token is still valid
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// Logout invalidates the current session token
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString("session_token")
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		log.Error().Err(err).Msg("Logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ChangePassword rotates the operator password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
