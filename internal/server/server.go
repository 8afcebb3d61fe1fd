// Package server hosts the HTTP surface: the /ws upgrade route, presence
// lookups and a health check, behind echo's recovery, request ID and logging
// middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/websocket"
)

// Options configures the HTTP server.
type Options struct {
	Addr string
	// HandshakeRateLimit caps /ws handshakes per client IP per minute. Zero
	// disables the limit.
	HandshakeRateLimit int
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E          *echo.Echo
	opts       Options
	handler    *websocket.Handler
	gatekeeper *websocket.Gatekeeper
	registry   *presence.Registry
	logger     *slog.Logger
}

// New creates a Server with its middleware and routes registered.
func New(opts Options, handler *websocket.Handler, gatekeeper *websocket.Gatekeeper, registry *presence.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	setupErrorHandling(e)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))

	s := &Server{
		E:          e,
		opts:       opts,
		handler:    handler,
		gatekeeper: gatekeeper,
		registry:   registry,
		logger:     logger.With("component", "server"),
	}
	s.RegisterRoutes()
	return s
}

// Shutdown closes every WebSocket connection, then stops the HTTP listener.
// Hijacked connections are not tracked by net/http, so the order matters.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.handler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close websocket connections: %w", err))
	}
	if err := s.E.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	return errors.Join(errs...)
}

// ShutdownTimeout bounds graceful shutdown after a stop signal.
const ShutdownTimeout = 10 * time.Second
