package main

import (
	"fmt"
	"time"

	"lounge_backend/internal/config"
	"lounge_backend/internal/policy"
	"lounge_backend/pkg/utils"

	"github.com/spf13/cobra"
)

var (
	tokenOperatorID int64
	tokenUsername   string
	tokenRole       string
	tokenTTL        time.Duration
)

// tokenCmd issues an access token signed with the configured secret, for local use and smoke tests.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := policy.ParseRole(tokenRole)
		switch role {
		case policy.RoleAdmin, policy.RoleManager, policy.RoleStaff:
		default:
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret != "" {
			if err := utils.ConfigureJWT(cfg.Auth.JWTSecret); err != nil {
				return err
			}
		}

		token, err := utils.GenerateAccessToken(tokenOperatorID, tokenUsername, string(role), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenOperatorID, "operator-id", 1, "operator id")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "admin", "operator username")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(policy.RoleAdmin), "admin, manager or staff")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", utils.AccessTokenTTL, "token lifetime")
}
