package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/nfrund/relay/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Contains(t, execute(t, "version"), "relay v")
}

func TestToken_JWT(t *testing.T) {
	secret := "cli-test-secret-cli-test-secret!"
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("AUTH_COOKIE_NAME", "auth-token")

	out := strings.TrimSpace(execute(t, "token", "alice"))
	require.True(t, strings.HasPrefix(out, "auth-token="), out)

	userID, err := auth.NewJWTAuthenticator([]byte(secret), nil).Verify(context.Background(), strings.TrimPrefix(out, "auth-token="))
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestToken_RequiresUser(t *testing.T) {
	rootCmd.SetArgs([]string{"token"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	assert.Error(t, rootCmd.Execute())
}
