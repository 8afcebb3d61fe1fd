package auth

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nfrund/relay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type staticRevocations struct {
	revoked map[string]bool
	err     error
}

func (s staticRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return s.revoked[tokenID], s.err
}

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestJWTAuthenticator_IssueAndVerify(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, nil)

	token, err := a.Issue("665f1b2c3d4e5f6a7b8c9d0e", DefaultTokenTTL)
	require.NoError(t, err)

	userID, err := a.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "665f1b2c3d4e5f6a7b8c9d0e", userID)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, nil)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "empty token",
			token:   "",
			wantErr: domain.ErrAuthenticationRequired,
		},
		{
			name:    "garbage",
			token:   "not-a-jwt",
			wantErr: domain.ErrInvalidToken,
		},
		{
			name: "expired",
			token: signClaims(t, jwt.SigningMethodHS256, testSecret, Claims{
				UserID:           "alice",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
			}),
			wantErr: domain.ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: signClaims(t, jwt.SigningMethodHS256, []byte("other"), Claims{
				UserID:           "alice",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
			}),
			wantErr: domain.ErrInvalidToken,
		},
		{
			name: "wrong algorithm",
			token: signClaims(t, jwt.SigningMethodHS512, testSecret, Claims{
				UserID:           "alice",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
			}),
			wantErr: domain.ErrInvalidToken,
		},
		{
			name: "missing userId",
			token: signClaims(t, jwt.SigningMethodHS256, testSecret, Claims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
			}),
			wantErr: domain.ErrInvalidToken,
		},
		{
			name: "missing expiry",
			token: signClaims(t, jwt.SigningMethodHS256, testSecret, Claims{
				UserID: "alice",
			}),
			wantErr: domain.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJWTAuthenticator_Revocation(t *testing.T) {
	issuer := NewJWTAuthenticator(testSecret, nil)
	token, err := issuer.Issue("alice", time.Hour)
	require.NoError(t, err)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)

	t.Run("revoked", func(t *testing.T) {
		a := NewJWTAuthenticator(testSecret, staticRevocations{revoked: map[string]bool{claims.ID: true}})
		_, err := a.Verify(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("not revoked", func(t *testing.T) {
		a := NewJWTAuthenticator(testSecret, staticRevocations{revoked: map[string]bool{}})
		userID, err := a.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "alice", userID)
	})

	t.Run("list unavailable", func(t *testing.T) {
		a := NewJWTAuthenticator(testSecret, staticRevocations{err: errors.New("connection refused")})
		_, err := a.Verify(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})
}

func TestRedisRevocationList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	key := "relay:test:revoked:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	list := NewRedisRevocationList(client, key)
	require.NoError(t, list.Ping(ctx, time.Second))

	revoked, err := list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "jti-1"))

	revoked, err = list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}
