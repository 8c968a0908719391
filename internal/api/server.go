// Package api provides the HTTP surface of projectd. Handlers are a
// thin translation layer: each route maps 1:1 onto a registry operation
// and the response status is a direct mapping of the error taxonomy.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/access"
	"github.com/fyrsmithlabs/projectd/internal/logging"
	"github.com/fyrsmithlabs/projectd/internal/registry"
)

// AgentHeader carries the requester identity on every request.
const AgentHeader = "X-Agent-ID"

// Server provides HTTP endpoints for projectd.
type Server struct {
	echo     *echo.Echo
	registry *registry.Registry
	recovery access.Recovery
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server. recovery may be nil when no
// bootstrap credential is configured; the admin endpoint then rejects.
func NewServer(reg *registry.Registry, recovery access.Recovery, logger *zap.Logger, cfg *Config) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewMetrics(logger).Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Seed the request context so downstream log lines carry
			// the same correlation fields as this access line.
			req := c.Request()
			reqCtx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			reqCtx = logging.WithRequester(reqCtx, req.Header.Get(AgentHeader))
			c.SetRequest(req.WithContext(reqCtx))

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: reg,
		recovery: recovery,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	sys := s.echo.Group("/systems/:system")
	sys.POST("/projects", s.handleCreate)
	sys.GET("/projects", s.handleList)
	sys.GET("/projects/:name", s.handleGet)
	sys.DELETE("/projects/:name", s.handleDelete)
	sys.PUT("/projects/:name/group", s.handleChangeGroup)
	sys.PUT("/projects/:name/metadata", s.handleChangeMetadata)
	sys.GET("/projects/:name/access", s.handleHasAccess)

	s.echo.POST("/admin/recover-service-group", s.handleRecover)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
