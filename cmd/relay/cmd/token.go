package cmd

import (
	"fmt"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/config"
	"github.com/spf13/cobra"
)

var tokenTTL = auth.DefaultTokenTTL

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a session token for local testing",
	Long: `Issue a session token for the given user with the configured secret, in the
format the configured AUTH_MODE expects. Send it as the value of the
AUTH_COOKIE_NAME cookie when opening /ws.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		var token string
		switch cfg.AuthMode {
		case config.AuthSession:
			token, err = auth.NewSessionAuthenticator(cfg.AuthCookieName, cfg.SessionMaxAge, []byte(cfg.SessionSecret)).Encode(args[0])
		default:
			token, err = auth.NewJWTAuthenticator([]byte(cfg.JWTSecret), nil).Issue(args[0], tokenTTL)
		}
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", cfg.AuthCookieName, token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "token lifetime (jwt mode only)")
	rootCmd.AddCommand(tokenCmd)
}
