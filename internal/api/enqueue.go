package api

import (
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

func (s *Server) enqueue(w http.ResponseWriter, task *asynq.Task, message string) {
	if s.enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	info, err := s.enqueuer.Enqueue(task)
	if err != nil {
		log.Error().Err(err).Str("task_type", task.Type()).Msg("failed to enqueue job")
		writeError(w, http.StatusInternalServerError, "failed to queue job")
		return
	}

	log.Info().
		Str("task_id", info.ID).
		Str("task_type", info.Type).
		Str("queue", info.Queue).
		Msg("job queued")

	writeJSON(w, http.StatusAccepted, jobResponse{
		Status:  "accepted",
		JobID:   info.ID,
		Message: message,
	})
}
