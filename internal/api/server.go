package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vk/flowgridgo/internal/dispatch"
	"github.com/vk/flowgridgo/internal/metrics"
)

// Server serves the dispatcher API on one HTTP listener.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewServer wires the routes. Metrics may be nil; /metrics then serves the
// process-global registry.
func NewServer(port int, d *dispatch.Dispatcher, m *metrics.Metrics, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", port),
			Handler:     engine,
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
		engine:     engine,
		dispatcher: d,
		logger:     logger.With("component", "api"),
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := engine.Group("/api/v1")
	v1.POST("/dispatches", s.handleSubmit)
	v1.GET("/dispatches", s.handleList)
	v1.GET("/dispatches/:id", s.handleStatus)
	v1.GET("/dispatches/:id/tasks/:taskID", s.handleTaskStatus)
	v1.GET("/dispatches/:id/results/:taskID", s.handleResult)
	v1.POST("/dispatches/:id/cancel", s.handleCancel)
	v1.DELETE("/dispatches/:id", s.handlePurge)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and serves in the background. It returns once the
// port is bound so callers know the API is reachable.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("binding api listener on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("🩺 API listening.", "addr", listener.Addr().String())
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server stopped unexpectedly.", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
