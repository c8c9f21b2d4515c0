package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/middleware"
)

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <role> [id]",
		Short: "Issue a bearer token for a restaurant, food bank, driver or admin.",
		Long: `Signs a token with JWT_SECRET for use in the Authorization header or the
?token= query parameter of the websocket. Every role except admin needs an id.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}

			actor := lifecycle.Actor{Role: lifecycle.Role(args[0])}
			if len(args) > 1 {
				actor.ID = args[1]
			}
			if err := middleware.CheckActor(actor); err != nil {
				return err
			}
			token, err := middleware.IssueToken([]byte(cfg.JWTSecret), actor, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
