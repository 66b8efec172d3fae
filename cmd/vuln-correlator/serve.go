package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vchan-in/vuln-correlator/internal/api"
	"github.com/vchan-in/vuln-correlator/internal/jobs"
)

func newServeCmd() *cobra.Command {
	var withWorker, withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, optionally with the job server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), withWorker, withScheduler)
		},
	}

	cmd.Flags().BoolVar(&withWorker, "with-worker", true, "process background jobs in this process")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", true, "enqueue periodic correlation and export jobs")

	return cmd
}

func runServe(ctx context.Context, withWorker, withScheduler bool) error {
	log.Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Server.Port).
		Msg("starting vuln-correlator")

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize services")
		return err
	}
	defer a.close()

	asynqClient := asynq.NewClient(jobs.RedisOpt(cfg.Redis))
	defer asynqClient.Close()

	stopBackground, err := startBackground(a, withWorker, withScheduler)
	if err != nil {
		return err
	}
	defer stopBackground()

	apiServer := api.NewServer(cfg, api.Deps{
		Repo:      a.repo,
		Inventory: a.inventory,
		Ingester:  a.ingester,
		Processor: a.processor,
		Exporter:  a.exporter,
		Enqueuer:  asynqClient,
		Metrics:   a.recorder,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("HTTP server starting")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	log.Info().Msg("server exited")
	return nil
}

// startBackground starts the job server and scheduler as requested and
// returns a function stopping both
func startBackground(a *app, withWorker, withScheduler bool) (func(), error) {
	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if withWorker {
		jobServer := jobs.NewServer(cfg, a.processor)
		go func() {
			if err := jobServer.Start(); err != nil {
				log.Error().Err(err).Msg("background job server failed")
			}
		}()
		stops = append(stops, jobServer.Stop)
	}

	if withScheduler {
		scheduler, err := jobs.NewScheduler(cfg)
		if err != nil {
			stopAll()
			return nil, err
		}
		if err := scheduler.Start(); err != nil {
			stopAll()
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
		stops = append(stops, scheduler.Stop)
	}

	return stopAll, nil
}
