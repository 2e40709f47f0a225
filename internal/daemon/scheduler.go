package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/hotpatch/internal/logfields"
)

// Scheduler wraps a gocron scheduler for periodic pipeline runs.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs task every interval. Overlapping executions are
// rescheduled rather than run concurrently. Returns the job ID.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, task func()) (string, error) {
	if interval <= 0 {
		return "", errors.New("interval must be positive")
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.logger.Debug("Executing scheduled job", slog.String("name", name))
			task()
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic job %s: %w", name, err)
	}
	s.logger.Info("Scheduled periodic job",
		logfields.JobID(job.ID().String()),
		slog.String("name", name),
		slog.Duration("interval", interval))
	return job.ID().String(), nil
}

// stopOnDone shuts the scheduler down when ctx ends.
func (s *Scheduler) stopOnDone(ctx context.Context) {
	<-ctx.Done()
	if err := s.Stop(); err != nil {
		s.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
	}
}
