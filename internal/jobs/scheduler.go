package jobs

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/config"
)

// Scheduler enqueues periodic correlation and export tasks
type Scheduler struct {
	scheduler *asynq.Scheduler
}

// NewScheduler creates a scheduler and registers the configured entries.
// An empty cron spec disables the corresponding entry.
func NewScheduler(cfg *config.Config) (*Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisOpt(cfg.Redis), &asynq.SchedulerOpts{
		Logger:   NewAsynqLogger(),
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error().Err(err).Msg("failed to enqueue scheduled task")
				return
			}
			log.Info().
				Str("task_id", info.ID).
				Str("task_type", info.Type).
				Msg("scheduled task enqueued")
		},
	})

	entries := []struct {
		spec    string
		newTask func(string) (*asynq.Task, error)
	}{
		{cfg.Scheduling.CorrelationInterval, NewCorrelationTask},
		{cfg.Scheduling.ExportInterval, NewExportTask},
	}

	for _, entry := range entries {
		if entry.spec == "" {
			continue
		}

		task, err := entry.newTask(TriggerSchedule)
		if err != nil {
			return nil, err
		}

		entryID, err := scheduler.Register(entry.spec, task)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s with spec %q: %w", task.Type(), entry.spec, err)
		}

		log.Info().
			Str("entry_id", entryID).
			Str("task_type", task.Type()).
			Str("spec", entry.spec).
			Msg("periodic task registered")
	}

	return &Scheduler{scheduler: scheduler}, nil
}

// Start starts the scheduler in the background
func (s *Scheduler) Start() error {
	log.Info().Msg("starting task scheduler")
	return s.scheduler.Start()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	log.Info().Msg("stopping task scheduler")
	s.scheduler.Shutdown()
}
