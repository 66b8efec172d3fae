package main

import (
	"github.com/spf13/cobra"

	"github.com/vchan-in/vuln-correlator/internal/config"
)

// cfg is loaded once before any subcommand runs
var cfg *config.Config

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vuln-correlator",
		Short:         "Correlate software assets with vulnerability advisories",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			setupLogging(cfg)
			return nil
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newCorrelateCmd(),
		newMigrateCmd(),
	)

	return rootCmd
}
