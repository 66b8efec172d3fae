package main

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/advisory"
	"github.com/vchan-in/vuln-correlator/internal/config"
	"github.com/vchan-in/vuln-correlator/internal/correlation"
	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/database/sqlite"
	"github.com/vchan-in/vuln-correlator/internal/export"
	"github.com/vchan-in/vuln-correlator/internal/inventory"
	"github.com/vchan-in/vuln-correlator/internal/jobs"
	"github.com/vchan-in/vuln-correlator/internal/metrics"
)

// app wires the services shared by every subcommand
type app struct {
	repo      database.Repository
	recorder  *metrics.Recorder
	engine    *correlation.Engine
	processor *jobs.Processor
	exporter  jobs.Exporter
	inventory *inventory.Service
	ingester  *advisory.Ingester
	sink      export.Sink
}

func openRepository(cfg *config.Config) (database.Repository, error) {
	if cfg.Database.Driver == config.DriverSQLite {
		return sqlite.Open(cfg.Database.Path)
	}
	return database.New(cfg.Database)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	repo, err := openRepository(cfg)
	if err != nil {
		return nil, err
	}

	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, err
	}

	a := &app{
		repo:      repo,
		recorder:  metrics.NewRecorder(),
		inventory: inventory.NewService(repo),
	}

	a.engine = correlation.New(repo,
		correlation.WithWorkers(cfg.Correlation.Workers),
		correlation.WithObserver(a.recorder),
	)
	a.ingester = advisory.NewIngester(repo, a.recorder)

	sink, err := export.NewSink(ctx, cfg.Export)
	if err != nil {
		log.Warn().Err(err).Str("sink", cfg.Export.Sink).Msg("export disabled")
	} else {
		a.sink = sink
		a.exporter = export.NewExporter(repo, sink, cfg.Export)
	}

	a.processor = jobs.NewProcessor(a.engine, repo, a.exporter)

	log.Info().
		Str("driver", cfg.Database.Driver).
		Int("workers", cfg.Correlation.Workers).
		Str("export_sink", cfg.Export.Sink).
		Msg("services initialized")

	return a, nil
}

func (a *app) close() {
	if closer, ok := a.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close export sink")
		}
	}
	a.repo.Close()
}
