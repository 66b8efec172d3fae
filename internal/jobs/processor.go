package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/export"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

// Runner performs one correlation run
type Runner interface {
	Run(ctx context.Context) (*types.RunStats, error)
}

// RunRecorder stores run statistics
type RunRecorder interface {
	RecordRun(ctx context.Context, stats *types.RunStats) error
}

// Exporter writes a match report
type Exporter interface {
	Export(ctx context.Context) (*export.Result, error)
}

// Processor holds the task handlers
type Processor struct {
	runner   Runner
	runs     RunRecorder
	exporter Exporter
}

// NewProcessor creates a processor. exporter may be nil, in which case
// export tasks fail.
func NewProcessor(runner Runner, runs RunRecorder, exporter Exporter) *Processor {
	return &Processor{
		runner:   runner,
		runs:     runs,
		exporter: exporter,
	}
}

// Register adds the handlers to mux
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCorrelationRun, p.HandleCorrelation)
	mux.HandleFunc(TypeExportMatches, p.HandleExport)
}

// RunCorrelation runs the engine and records the run
func (p *Processor) RunCorrelation(ctx context.Context) (*types.RunStats, error) {
	stats, err := p.runner.Run(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.runs.RecordRun(ctx, stats); err != nil {
		log.Warn().Err(err).Msg("failed to record correlation run")
	}

	return stats, nil
}

// HandleCorrelation processes correlation tasks
func (p *Processor) HandleCorrelation(ctx context.Context, task *asynq.Task) error {
	var payload CorrelationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal correlation payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	log.Info().
		Str("task_id", taskID).
		Str("trigger", payload.Trigger).
		Msg("processing correlation job")

	stats, err := p.RunCorrelation(ctx)
	if err != nil {
		return fmt.Errorf("correlation run failed: %w", err)
	}

	log.Info().
		Str("task_id", taskID).
		Str("run_id", stats.ID).
		Int("total_matches", stats.TotalMatches).
		Msg("correlation job completed")

	return nil
}

// HandleExport processes export tasks
func (p *Processor) HandleExport(ctx context.Context, task *asynq.Task) error {
	if p.exporter == nil {
		return fmt.Errorf("no export sink configured: %w", asynq.SkipRetry)
	}

	var payload ExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal export payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	log.Info().
		Str("task_id", taskID).
		Str("trigger", payload.Trigger).
		Msg("processing export job")

	result, err := p.exporter.Export(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	log.Info().
		Str("task_id", taskID).
		Str("location", result.Location).
		Int("matches", result.Matches).
		Msg("export job completed")

	return nil
}
