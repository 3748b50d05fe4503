// Package http serves build status for a running pipeline.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/plains/internal/entry"
	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/fyrsmithlabs/plains/internal/orchestrator"
	"github.com/fyrsmithlabs/plains/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Entries exposes the registry's stacks.
type Entries interface {
	Stacks() []string
	Stack(name string) ([]entry.Entry, error)
}

// Engine exposes subscriptions and publishing.
type Engine interface {
	Subscriptions() []orchestrator.SubscriptionInfo
	Publish(ctx context.Context, exprs ...string) error
}

// HealthChecker reports telemetry health.
type HealthChecker interface {
	Health() telemetry.HealthStatus
}

// Deps are the components the server reports on.
type Deps struct {
	Entries  Entries
	Engine   Engine
	Health   HealthChecker       // optional
	Gatherer prometheus.Gatherer // optional, serves /metrics when set

	// Registerer receives the HTTP request metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for plains.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(logger *logging.Logger, cfg *Config, deps Deps) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if deps.Entries == nil {
		return nil, fmt.Errorf("entries cannot be nil")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8089,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	if deps.Registerer != nil {
		e.Use(NewHTTPMetrics(deps.Registerer).MetricsMiddleware())
	}

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger.Named("http"),
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/stacks", s.handleStacks)
	v1.GET("/stacks/:name", s.handleStack)
	v1.GET("/subscriptions", s.handleSubscriptions)
	v1.POST("/publish", s.handlePublish)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.deps.Health != nil {
		h := s.deps.Health.Health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStacks(c echo.Context) error {
	names := s.deps.Entries.Stacks()
	resp := StacksResponse{Stacks: make([]StackSummary, 0, len(names))}
	for _, name := range names {
		entries, err := s.deps.Entries.Stack(name)
		if err != nil {
			// Removed between listing and lookup.
			continue
		}
		resp.Stacks = append(resp.Stacks, StackSummary{Name: name, Count: len(entries)})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStack(c echo.Context) error {
	name := c.Param("name")
	entries, err := s.deps.Entries.Stack(name)
	if errors.Is(err, entry.ErrUnknownStack) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown stack: "+name)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StackResponse{Name: name, Entries: entries})
}

func (s *Server) handleSubscriptions(c echo.Context) error {
	return c.JSON(http.StatusOK, SubscriptionsResponse{Subscriptions: s.deps.Engine.Subscriptions()})
}

func (s *Server) handlePublish(c echo.Context) error {
	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid publish request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	start := time.Now()
	err := s.deps.Engine.Publish(c.Request().Context(), req.Hooks...)
	resp := PublishResponse{Status: "resolved", Duration: time.Since(start).String()}

	switch {
	case err == nil:
		return c.JSON(http.StatusOK, resp)
	case errors.Is(err, orchestrator.ErrPhaseBusy):
		return echo.NewHTTPError(http.StatusConflict, "publish already in progress")
	case errors.Is(err, orchestrator.ErrMissingSubscription):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	resp.Status = "rejected"
	for _, pe := range orchestrator.Rejections(err) {
		resp.Rejections = append(resp.Rejections, Rejection{
			Task:  pe.Name,
			Phase: string(pe.Phase),
			Error: pe.Err.Error(),
		})
	}
	if len(resp.Rejections) == 0 {
		resp.Rejections = []Rejection{{Error: err.Error()}}
	}
	return c.JSON(http.StatusUnprocessableEntity, resp)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Start starts the HTTP server. It blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.Addr()))
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
