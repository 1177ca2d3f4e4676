package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pelusa-v/pelusa-chat/internal/config"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
)

func tokenCmd(configFile *string) *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			if !identity.ValidUserID(user) {
				return fmt.Errorf("invalid --user %q", user)
			}
			r := identity.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid --role %q", role)
			}
			tok, err := identity.NewJWTVerifier(cfg.JWTSecret).Sign(user, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id (required)")
	cmd.Flags().StringVarP(&role, "role", "r", string(identity.RoleCustomer), "customer, provider or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
