package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vchan-in/vuln-correlator/internal/export"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

type fakeRunner struct {
	stats *types.RunStats
	err   error
	calls int
}

func (f *fakeRunner) Run(context.Context) (*types.RunStats, error) {
	f.calls++
	return f.stats, f.err
}

type fakeRecorder struct {
	recorded []*types.RunStats
	err      error
}

func (f *fakeRecorder) RecordRun(_ context.Context, stats *types.RunStats) error {
	if f.err != nil {
		return f.err
	}
	stats.ID = "run-1"
	f.recorded = append(f.recorded, stats)
	return nil
}

type fakeExporter struct {
	result *export.Result
	err    error
}

func (f *fakeExporter) Export(context.Context) (*export.Result, error) {
	return f.result, f.err
}

func TestNewTasks(t *testing.T) {
	task, err := NewCorrelationTask(TriggerAPI)
	require.NoError(t, err)
	assert.Equal(t, TypeCorrelationRun, task.Type())

	var payload CorrelationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, TriggerAPI, payload.Trigger)

	task, err = NewExportTask(TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, TypeExportMatches, task.Type())
}

func TestHandleCorrelationRecordsRun(t *testing.T) {
	runner := &fakeRunner{stats: &types.RunStats{TotalMatches: 4}}
	recorder := &fakeRecorder{}
	p := NewProcessor(runner, recorder, nil)

	task, err := NewCorrelationTask(TriggerSchedule)
	require.NoError(t, err)

	require.NoError(t, p.HandleCorrelation(context.Background(), task))
	assert.Equal(t, 1, runner.calls)
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, 4, recorder.recorded[0].TotalMatches)
}

func TestHandleCorrelationSurvivesRecordFailure(t *testing.T) {
	runner := &fakeRunner{stats: &types.RunStats{}}
	p := NewProcessor(runner, &fakeRecorder{err: errors.New("db down")}, nil)

	stats, err := p.RunCorrelation(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stats)
}

func TestHandleCorrelationErrors(t *testing.T) {
	runErr := errors.New("store unavailable")
	p := NewProcessor(&fakeRunner{err: runErr}, &fakeRecorder{}, nil)

	task, err := NewCorrelationTask(TriggerAPI)
	require.NoError(t, err)
	assert.ErrorIs(t, p.HandleCorrelation(context.Background(), task), runErr)

	bad := asynq.NewTask(TypeCorrelationRun, []byte("{"))
	assert.ErrorIs(t, p.HandleCorrelation(context.Background(), bad), asynq.SkipRetry)
}

func TestHandleExport(t *testing.T) {
	task, err := NewExportTask(TriggerAPI)
	require.NoError(t, err)

	p := NewProcessor(&fakeRunner{}, &fakeRecorder{}, &fakeExporter{result: &export.Result{Location: "exports/m.json", Matches: 2}})
	assert.NoError(t, p.HandleExport(context.Background(), task))

	exportErr := errors.New("bucket missing")
	p = NewProcessor(&fakeRunner{}, &fakeRecorder{}, &fakeExporter{err: exportErr})
	assert.ErrorIs(t, p.HandleExport(context.Background(), task), exportErr)

	p = NewProcessor(&fakeRunner{}, &fakeRecorder{}, nil)
	assert.ErrorIs(t, p.HandleExport(context.Background(), task), asynq.SkipRetry)
}

func TestRegisterRoutesTasks(t *testing.T) {
	runner := &fakeRunner{stats: &types.RunStats{}}
	mux := asynq.NewServeMux()
	NewProcessor(runner, &fakeRecorder{}, nil).Register(mux)

	task, err := NewCorrelationTask(TriggerCLI)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, runner.calls)
}
