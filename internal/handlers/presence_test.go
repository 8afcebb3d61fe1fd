package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPresence is a simple mock for testing
type mockPresence struct {
	users []string
}

func (m *mockPresence) OnlineUsers() []string {
	return m.users
}

func (m *mockPresence) IsOnline(userID string) bool {
	for _, u := range m.users {
		if u == userID {
			return true
		}
	}
	return false
}

func newPresenceRouter(source handlers.PresenceSource) *echo.Echo {
	h := handlers.NewPresenceHandler(source)
	e := echo.New()
	e.GET("/presence", h.GetPresence)
	e.GET("/presence/:userID", h.GetUserPresence)
	return e
}

func get(t *testing.T, e *echo.Echo, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPresenceHandler_GetPresence(t *testing.T) {
	e := newPresenceRouter(&mockPresence{users: []string{"alice", "bob"}})

	rec := get(t, e, "/presence")

	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.PresenceListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"alice", "bob"}, body.OnlineUsers)
	assert.Equal(t, 2, body.Count)
}

func TestPresenceHandler_GetUserPresence(t *testing.T) {
	e := newPresenceRouter(&mockPresence{users: []string{"alice"}})

	tests := []struct {
		path   string
		online bool
	}{
		{"/presence/alice", true},
		{"/presence/carol", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, e, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			var body handlers.UserPresenceResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.online, body.Online)
		})
	}
}
