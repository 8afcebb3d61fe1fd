package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/domain"
)

// Gatekeeper decides whether a handshake may become a connection. It runs
// before the upgrade and touches no other state.
type Gatekeeper struct {
	authenticator auth.Authenticator
	cookieName    string
}

// NewGatekeeper reads the session token from cookieName.
func NewGatekeeper(authenticator auth.Authenticator, cookieName string) *Gatekeeper {
	return &Gatekeeper{authenticator: authenticator, cookieName: cookieName}
}

// Admit returns the identity carried by the handshake's session cookie.
// It fails with domain.ErrAuthenticationRequired when there is no token and
// with domain.ErrInvalidToken when the token does not verify.
func (g *Gatekeeper) Admit(ctx context.Context, header http.Header) (string, error) {
	// http.Request does the Cookie header parsing.
	req := &http.Request{Header: header}
	cookie, err := req.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		return "", domain.ErrAuthenticationRequired
	}

	userID, err := g.authenticator.Verify(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrAuthenticationRequired) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if userID == "" {
		return "", domain.ErrInvalidToken
	}
	return userID, nil
}
