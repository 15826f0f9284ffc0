package main

import (
	"github.com/spf13/cobra"

	"quicksand/internal/auth"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative helpers",
	}

	cmd.AddCommand(newAdminHashTokenCmd())
	return cmd
}

func newAdminHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Hash an admin token for the admin_token_hash config key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := args[0]
			if err := auth.ValidateToken(token); err != nil {
				return err
			}
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			return writePlain("%s\n", hash)
		},
	}
}
