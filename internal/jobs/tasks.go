package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TypeCorrelationRun = "correlation:run"
	TypeExportMatches  = "export:matches"
)

// Queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// CorrelationPayload is the payload of a correlation task
type CorrelationPayload struct {
	Trigger string `json:"trigger"`
}

// ExportPayload is the payload of an export task
type ExportPayload struct {
	Trigger string `json:"trigger"`
}

// Task triggers
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// NewCorrelationTask creates a full correlation run task
func NewCorrelationTask(trigger string) (*asynq.Task, error) {
	payload, err := json.Marshal(CorrelationPayload{Trigger: trigger})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal correlation payload: %w", err)
	}

	return asynq.NewTask(TypeCorrelationRun, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
	), nil
}

// NewExportTask creates a match report export task
func NewExportTask(trigger string) (*asynq.Task, error) {
	payload, err := json.Marshal(ExportPayload{Trigger: trigger})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export payload: %w", err)
	}

	return asynq.NewTask(TypeExportMatches, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(2),
		asynq.Timeout(15*time.Minute),
	), nil
}
