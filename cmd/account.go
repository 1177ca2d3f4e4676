package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pelusa-v/pelusa-chat/internal/config"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

func accountCmd(configFile *string) *cobra.Command {
	var acc store.Account
	var status string
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create or update an account record in the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			if !identity.ValidUserID(acc.UserID) {
				return fmt.Errorf("invalid --user %q", acc.UserID)
			}
			acc.Status = store.AccountStatus(status)
			switch acc.Status {
			case store.StatusActive, store.StatusSuspended, store.StatusBanned:
			default:
				return fmt.Errorf("invalid --status %q", status)
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.UpsertAccount(ctx, &acc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s is %s\n", acc.UserID, acc.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&acc.UserID, "user", "u", "", "user id (required)")
	cmd.Flags().StringVar(&status, "status", string(store.StatusActive), "active, suspended or banned")
	cmd.Flags().StringVar(&acc.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&acc.AvatarURL, "avatar", "", "avatar URL")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
