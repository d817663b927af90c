// Package server exposes the agent over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/TFMV/scout/cmd/scout/config"
	"github.com/TFMV/scout/cmd/scout/middleware"
	"github.com/TFMV/scout/pkg/infrastructure/pool"
	"github.com/TFMV/scout/pkg/models"
)

// Runner answers questions. Satisfied by agent.Orchestrator.
type Runner interface {
	Run(ctx context.Context, question *models.Question) *models.Response
}

// Server is the HTTP front end for the agent.
type Server struct {
	cfg    *config.Config
	runner Runner
	pool   pool.ConnectionPool
	logger zerolog.Logger
	engine *gin.Engine
	http   *http.Server
}

// New creates a server.
func New(cfg *config.Config, runner Runner, p pool.ConnectionPool, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		pool:   p,
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.NewAuthMiddleware(cfg.Auth, logger).Handler(),
	)
	engine.POST("/v1/questions", s.handleQuestion)
	engine.GET("/healthz", s.handleHealth)

	s.engine = engine
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the configured handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.cfg.Address).Msg("Starting HTTP server")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

type questionRequest struct {
	Question        string `json:"question"`
	MaxIterations   int    `json:"max_iterations,omitempty"`
	MaxStepAttempts int    `json:"max_step_attempts,omitempty"`
	MaxRows         int    `json:"max_rows,omitempty"`
}

func (s *Server) handleQuestion(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	cfg := models.RunConfig{
		Database:        s.cfg.Database,
		MaxIterations:   s.cfg.Agent.MaxIterations,
		MaxStepAttempts: s.cfg.Agent.MaxStepAttempts,
		QueryTimeout:    s.cfg.Agent.QueryTimeout,
		MaxRows:         s.cfg.Agent.MaxRows,
	}
	// Per-request budgets may tighten the configured ones, not widen them.
	if req.MaxIterations > 0 && req.MaxIterations < cfg.MaxIterations {
		cfg.MaxIterations = req.MaxIterations
	}
	if req.MaxStepAttempts > 0 && req.MaxStepAttempts < cfg.MaxStepAttempts {
		cfg.MaxStepAttempts = req.MaxStepAttempts
	}
	if req.MaxRows > 0 && req.MaxRows < cfg.MaxRows {
		cfg.MaxRows = req.MaxRows
	}

	question := models.NewQuestion(req.Question, cfg)
	resp := s.runner.Run(c.Request.Context(), question)

	status := http.StatusOK
	if resp.Status == models.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.pool.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
