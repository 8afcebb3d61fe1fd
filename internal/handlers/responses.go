package handlers

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PresenceListResponse lists every user with an addressable connection.
type PresenceListResponse struct {
	OnlineUsers []string `json:"online_users"`
	Count       int      `json:"count"`
}

// UserPresenceResponse reports one user's status, in the same shape as the
// user-status event payload.
type UserPresenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}
