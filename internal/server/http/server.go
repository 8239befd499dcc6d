// Package httpserver exposes the TaskPulse JSON API over echo.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/taskpulse/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the application services behind the routes.
type Services struct {
	Sessions    service.SessionService
	Credentials service.CredentialService
	Descriptors service.DescriptorService
	Sync        service.SyncService
	KPIs        service.KPIService
}

// Server wires services into echo handlers.
type Server struct {
	echo *echo.Echo
	svc  Services
	log  *zap.Logger
}

// New constructs the HTTP server. gatherer backs /metrics; nil disables the route.
func New(svc Services, gatherer prometheus.Gatherer, log *zap.Logger) (*Server, error) {
	if svc.Sessions == nil || svc.Credentials == nil || svc.Descriptors == nil || svc.Sync == nil || svc.KPIs == nil {
		return nil, errors.New("httpserver: all services are required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLog(log))

	s := &Server{echo: e, svc: svc, log: log}
	s.routes(gatherer)
	return s, nil
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1", Authenticate(s.svc.Sessions))
	v1.GET("/sources", s.handleListSources)
	v1.PUT("/sources", s.handlePutSource)
	v1.DELETE("/sources/:id", s.handleDeleteSource)
	v1.POST("/sources/:id/sync", s.handleSync)

	v1.GET("/tables", s.handleListTables)
	v1.POST("/tables", s.handleSelectTable)
	v1.DELETE("/tables/:id", s.handleDeselectTable)
	v1.PUT("/tables/:id/mapping", s.handlePutMapping)
	v1.GET("/tables/:id/mapping", s.handleGetMapping)

	v1.GET("/tasks", s.handleListTasks)
	v1.GET("/kpis/weekly", s.handleWeeklyKPIs)
}

func requestLog(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			// metadata only, never bodies
			log.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("dur", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
