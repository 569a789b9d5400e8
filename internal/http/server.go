// Package http serves knowledge ingestion and pipeline runs over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/actions"
	"github.com/fyrsmithlabs/adminrag/internal/knowledge"
	"github.com/fyrsmithlabs/adminrag/internal/logging"
	"github.com/fyrsmithlabs/adminrag/internal/orchestrator"
)

// KnowledgeIngester rebuilds the knowledge index.
type KnowledgeIngester interface {
	Ingest(ctx context.Context) (knowledge.IngestStats, error)
	Reset(ctx context.Context) error
}

// PipelineRunner executes one pipeline run.
type PipelineRunner interface {
	Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResponse, error)
}

var (
	_ KnowledgeIngester = (*knowledge.Service)(nil)
	_ PipelineRunner    = (*orchestrator.Runner)(nil)
)

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	knowledge KnowledgeIngester
	runner    PipelineRunner
	logger    *logging.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(ingester KnowledgeIngester, runner PipelineRunner, logger *logging.Logger, cfg *Config) (*Server, error) {
	if ingester == nil {
		return nil, fmt.Errorf("knowledge ingester cannot be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("pipeline runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext(logger))
	e.Use(NewHTTPMetrics(logger).Middleware())

	s := &Server{
		echo:      e,
		knowledge: ingester,
		runner:    runner,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

// requestContext attaches the request id to the request context and logs
// each request once it completes.
func requestContext(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ingest-knowledge", s.handleIngest)
	v1.POST("/run", s.handleRun)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RunRequest is the request body for POST /api/v1/run. DryRun defaults to
// true when omitted.
type RunRequest struct {
	InboxDir string `json:"inbox_dir"`
	Goal     string `json:"goal"`
	DryRun   *bool  `json:"dry_run"`
}

// RunErrorResponse is returned when a run fails after it has started. The
// audit reference points at the entry recording the failure.
type RunErrorResponse struct {
	Message string                    `json:"message"`
	Run     *orchestrator.RunResponse `json:"run,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIngest rebuilds the knowledge index. ?reset=true drops the existing
// chunks first.
func (s *Server) handleIngest(c echo.Context) error {
	ctx := c.Request().Context()

	reset := false
	if raw := c.QueryParam("reset"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "reset must be a boolean")
		}
		reset = v
	}

	if reset {
		if err := s.knowledge.Reset(ctx); err != nil {
			s.logger.Error(ctx, "knowledge reset failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "knowledge reset failed")
		}
	}

	stats, err := s.knowledge.Ingest(ctx)
	if err != nil {
		s.logger.Error(ctx, "knowledge ingest failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "knowledge ingest failed")
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req RunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid run request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	resp, err := s.runner.Run(ctx, orchestrator.RunRequest{
		InboxDir: req.InboxDir,
		Goal:     req.Goal,
		DryRun:   dryRun,
	})
	if err != nil {
		status := http.StatusInternalServerError
		var unknown *actions.UnknownToolError
		if errors.As(err, &unknown) {
			status = http.StatusUnprocessableEntity
		}
		return c.JSON(status, RunErrorResponse{Message: err.Error(), Run: resp})
	}
	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
