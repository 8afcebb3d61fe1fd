// Package auth verifies the session token presented on the WebSocket
// handshake and resolves it to a user identity.
package auth

import "context"

// Authenticator turns a session token into a user identity.
// Implementations return an error wrapping domain.ErrInvalidToken for any
// token they reject.
type Authenticator interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}
