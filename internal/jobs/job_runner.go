package jobs

import (
	"rentshare-backend/internal/clock"
	"rentshare-backend/internal/config"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/repository"
	"rentshare-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	reservations repository.ReservationRepository
	engine       service.ReservationService
	clock        clock.Clock
	config       *config.Config
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(reservations repository.ReservationRepository, engine service.ReservationService, clk clock.Clock, cfg *config.Config) *JobRunner {
	if clk == nil {
		clk = clock.Real()
	}
	return &JobRunner{
		reservations: reservations,
		engine:       engine,
		clock:        clk,
		config:       cfg,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.CompleteElapsedReservations()
}
