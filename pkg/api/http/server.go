package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aescanero/dagent/internal/application/orchestrator"
	"github.com/aescanero/dagent/internal/application/scheduler"
	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StreamHandler serves the live event stream of one run.
type StreamHandler interface {
	HandleRunStream(c *gin.Context)
}

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	server       *http.Server
	orchestrator *orchestrator.Manager
	scheduler    *scheduler.Scheduler
	credentials  *credentials.Manager
	logger       *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Addr         string
	Orchestrator *orchestrator.Manager
	Scheduler    *scheduler.Scheduler
	Credentials  *credentials.Manager
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Stream   StreamHandler
	Logger   *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger(logger))

	s := &Server{
		router:       router,
		orchestrator: cfg.Orchestrator,
		scheduler:    cfg.Scheduler,
		credentials:  cfg.Credentials,
		logger:       logger,
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.setupRoutes(gatherer, cfg.Stream)

	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer, stream StreamHandler) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/runs", s.handleSubmitRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.POST("/runs/:id/cancel", s.handleCancelRun)
		if stream != nil {
			v1.GET("/runs/:id/ws", stream.HandleRunStream)
		}

		v1.GET("/pool", s.handleGetPool)
		v1.POST("/pool/reset", s.handleResetPool)
		v1.POST("/provider", s.handleSwitchProvider)
		v1.GET("/models", s.handleListModels)

		v1.GET("/scaling", s.handleGetScaling)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
