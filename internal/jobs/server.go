package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/config"
)

// Server handles background job processing
type Server struct {
	asynqServer *asynq.Server
	mux         *asynq.ServeMux
}

// RedisOpt builds the asynq connection options from configuration
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewServer creates a new background job server
func NewServer(cfg *config.Config, processor *Processor) *Server {
	asynqConfig := asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
		Logger: NewAsynqLogger(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().
				Err(err).
				Str("task_type", task.Type()).
				Bytes("payload", task.Payload()).
				Msg("job processing failed")
		}),
	}

	s := &Server{
		asynqServer: asynq.NewServer(RedisOpt(cfg.Redis), asynqConfig),
		mux:         asynq.NewServeMux(),
	}
	processor.Register(s.mux)

	return s
}

// Start runs the job server until Stop is called
func (s *Server) Start() error {
	log.Info().Msg("starting background job server")
	return s.asynqServer.Run(s.mux)
}

// Stop stops the job processing server
func (s *Server) Stop() {
	log.Info().Msg("stopping background job server")
	s.asynqServer.Shutdown()
}

// AsynqLogger implements asynq.Logger interface using zerolog
type AsynqLogger struct{}

// NewAsynqLogger creates a new Asynq logger
func NewAsynqLogger() *AsynqLogger {
	return &AsynqLogger{}
}

func (l *AsynqLogger) Debug(args ...interface{}) {
	log.Debug().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (l *AsynqLogger) Info(args ...interface{}) {
	log.Info().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (l *AsynqLogger) Warn(args ...interface{}) {
	log.Warn().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (l *AsynqLogger) Error(args ...interface{}) {
	log.Error().Str("component", "asynq").Msg(fmt.Sprint(args...))
}

func (l *AsynqLogger) Fatal(args ...interface{}) {
	log.Fatal().Str("component", "asynq").Msg(fmt.Sprint(args...))
}
