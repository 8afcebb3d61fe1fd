package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/middleware"
)

// PresenceSource is the read side of the presence registry.
type PresenceSource interface {
	OnlineUsers() []string
	IsOnline(userID string) bool
}

// PresenceHandler handles presence-related HTTP requests
type PresenceHandler struct {
	presence PresenceSource
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(presence PresenceSource) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetPresence returns the current online users as JSON
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	onlineUsers := h.presence.OnlineUsers()
	middleware.FromContext(c.Request().Context()).Debug("Presence listed", "count", len(onlineUsers))

	return c.JSON(http.StatusOK, PresenceListResponse{
		OnlineUsers: onlineUsers,
		Count:       len(onlineUsers),
	})
}

// GetUserPresence returns the presence status for a specific user. Offline
// users are reported as such rather than as missing.
func (h *PresenceHandler) GetUserPresence(c echo.Context) error {
	userID := c.Param("userID")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "invalid",
			Message: "userID parameter required",
		})
	}

	return c.JSON(http.StatusOK, UserPresenceResponse{
		UserID: userID,
		Online: h.presence.IsOnline(userID),
	})
}
