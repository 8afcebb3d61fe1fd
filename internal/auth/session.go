package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/nfrund/relay/internal/domain"
)

// SessionUserKey is the session value holding the user identity.
const SessionUserKey = "user_id"

// SessionAuthenticator verifies gorilla/sessions cookie values written by the
// login flow's CookieStore.
type SessionAuthenticator struct {
	name   string
	codecs []securecookie.Codec
}

// NewSessionAuthenticator uses the same key pairs and max age as the store that
// issues the cookie. name is the session (cookie) name.
func NewSessionAuthenticator(name string, maxAge time.Duration, keyPairs ...[]byte) *SessionAuthenticator {
	store := sessions.NewCookieStore(keyPairs...)
	store.MaxAge(int(maxAge.Seconds()))
	return &SessionAuthenticator{name: name, codecs: store.Codecs}
}

// Verify implements Authenticator.
func (a *SessionAuthenticator) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrAuthenticationRequired
	}

	values := make(map[interface{}]interface{})
	if err := securecookie.DecodeMulti(a.name, token, &values, a.codecs...); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	userID, ok := values[SessionUserKey].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: session has no user", domain.ErrInvalidToken)
	}
	return userID, nil
}

// Encode produces a cookie value for userID, as the login flow would.
func (a *SessionAuthenticator) Encode(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("encode session: empty user id")
	}
	values := map[interface{}]interface{}{SessionUserKey: userID}
	return securecookie.EncodeMulti(a.name, values, a.codecs...)
}
