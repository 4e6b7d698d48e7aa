package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/api/handlers"
	"example.com/snackhouse/delivery/internal/api/middleware"
	"example.com/snackhouse/delivery/internal/metrics"
	"example.com/snackhouse/delivery/internal/repositories"
	"example.com/snackhouse/delivery/internal/scheduler"
	"example.com/snackhouse/delivery/internal/services"
	"example.com/snackhouse/delivery/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server

	deliveryService *services.DeliveryService
	stockService    *services.StockService
	reportService   *services.ReportService
	authService     *services.AuthService
	credentials     repositories.CredentialRepository
	scheduler       *scheduler.Scheduler
	metrics         *metrics.Metrics
	tracer          tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	deliveryService *services.DeliveryService,
	stockService *services.StockService,
	reportService *services.ReportService,
	authService *services.AuthService,
	credentials repositories.CredentialRepository,
	sched *scheduler.Scheduler,
	m *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:          cfg,
		deliveryService: deliveryService,
		stockService:    stockService,
		reportService:   reportService,
		authService:     authService,
		credentials:     credentials,
		scheduler:       sched,
		metrics:         m,
		tracer:          tracer,
	}

	server.router = server.setupRouter()

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(gin.Recovery())

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"pending_reminders": s.scheduler.PendingCount(),
		})
	})

	metricsHandler := handlers.NewMetricsHandler(s.metrics)
	metricsHandler.RegisterRoutes(router)

	authHandler := handlers.NewAuthHandler(s.authService, s.tracer)

	public := router.Group("/api")
	authHandler.RegisterPublicRoutes(public)

	protected := router.Group("/api")
	protected.Use(middleware.SessionAuth(s.authService))

	authHandler.RegisterProtectedRoutes(protected)
	handlers.NewDeliveryHandler(s.deliveryService, s.tracer).RegisterRoutes(protected)
	handlers.NewStockHandler(s.stockService, s.tracer).RegisterRoutes(protected)
	handlers.NewReportHandler(s.reportService, s.tracer).RegisterRoutes(protected)

	// Voice credential management lives outside /api but still behind a
	// session.
	voiceAuth := router.Group("/auth")
	voiceAuth.Use(middleware.SessionAuth(s.authService))
	handlers.NewCredentialHandler(s.credentials).RegisterRoutes(voiceAuth)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
