package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nfrund/relay/internal/domain"
)

// DefaultTokenTTL matches the lifetime of tokens issued at login.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims is the token body. The identity lives in the userId claim.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// RevocationChecker reports whether a token ID has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// JWTAuthenticator verifies HS256 tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret      []byte
	revocations RevocationChecker
	parser      *jwt.Parser
}

// NewJWTAuthenticator creates a verifier. revocations may be nil.
func NewJWTAuthenticator(secret []byte, revocations RevocationChecker) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret:      secret,
		revocations: revocations,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify implements Authenticator.
func (a *JWTAuthenticator) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrAuthenticationRequired
	}

	claims := &Claims{}
	parsed, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return "", fmt.Errorf("%w: missing userId claim", domain.ErrInvalidToken)
	}

	if a.revocations != nil && claims.ID != "" {
		revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Fail closed when the revocation list is unreachable.
			return "", fmt.Errorf("%w: revocation check: %v", domain.ErrInvalidToken, err)
		}
		if revoked {
			return "", fmt.Errorf("%w: token revoked", domain.ErrInvalidToken)
		}
	}

	return claims.UserID, nil
}

// Issue signs a token for userID. Login lives elsewhere; this serves the CLI
// and tests.
func (a *JWTAuthenticator) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("issue token: empty user id")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
