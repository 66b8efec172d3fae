package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process background correlation and export jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			stop, err := startBackground(a, true, withScheduler)
			if err != nil {
				return err
			}
			defer stop()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit

			log.Info().Str("signal", sig.String()).Msg("shutting down worker")
			return nil
		},
	}

	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also enqueue periodic jobs")

	return cmd
}
