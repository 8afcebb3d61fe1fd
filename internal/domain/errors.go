package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for the handshake and relay paths.
var (
	// ErrAuthenticationRequired means the handshake carried no session token.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrInvalidToken means a session token was present but did not verify
	// (bad signature, expired, malformed or revoked).
	ErrInvalidToken = errors.New("invalid token")

	// ErrPersistenceFailure wraps any store error raised while saving a message.
	ErrPersistenceFailure = errors.New("message persistence failed")

	ErrNotFound     = errors.New("requested resource not found")
	ErrInvalidInput = errors.New("invalid input")
)
