package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/handlers"
	"github.com/nfrund/relay/internal/middleware"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Online int    `json:"online"`
}

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	var wsMiddleware []echo.MiddlewareFunc
	if s.opts.HandshakeRateLimit > 0 {
		wsMiddleware = append(wsMiddleware, middleware.RateLimiter(s.opts.HandshakeRateLimit))
	}
	s.E.GET("/ws", s.handler.Serve, wsMiddleware...)

	presenceHandler := handlers.NewPresenceHandler(s.registry)
	presence := s.E.Group("/presence", s.requireSession)
	presence.GET("", presenceHandler.GetPresence)
	presence.GET("/:userID", presenceHandler.GetUserPresence)

	s.E.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status: "ok",
			Online: len(s.registry.OnlineUsers()),
		})
	})
}

// requireSession admits requests carrying the same session cookie the
// WebSocket handshake needs.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := s.gatekeeper.Admit(c.Request().Context(), c.Request().Header); err != nil {
			code := "invalid_token"
			if errors.Is(err, domain.ErrAuthenticationRequired) {
				code = "authentication_required"
			}
			return c.JSON(http.StatusUnauthorized, handlers.ErrorResponse{Code: code, Message: err.Error()})
		}
		return next(c)
	}
}
