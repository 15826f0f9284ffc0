package main

import (
	"github.com/spf13/cobra"

	"quicksand/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "quicksand",
		Short: "Quicksand is an ephemeral image hosting service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				cmd.PrintErrln(warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newSweepCmd(cfg),
		newReconcileCmd(cfg),
		newInfoCmd(cfg),
		newConfigCmd(cfg),
		newAdminCmd(),
	)

	return cmd
}
