package daemon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const exportJobName = "periodic-export"

// Scheduler wraps a gocron scheduler holding the single periodic export job.
type Scheduler struct {
	scheduler gocron.Scheduler
	mu        sync.Mutex
	jobID     uuid.UUID
	interval  time.Duration
	task      func()
}

// NewScheduler creates a scheduler whose job calls task.
func NewScheduler(task func()) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, task: task}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Schedule runs the task every interval, first immediately. Calling it again
// replaces the interval of the existing job.
func (s *Scheduler) Schedule(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobID != uuid.Nil {
		if interval == s.interval {
			return nil
		}
		job, err := s.scheduler.Update(s.jobID,
			gocron.DurationJob(interval),
			gocron.NewTask(s.task),
			gocron.WithName(exportJobName),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to reschedule export job: %w", err)
		}
		s.jobID = job.ID()
		s.interval = interval
		slog.Info("Export job rescheduled", slog.Duration("interval", interval))
		return nil
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.task),
		gocron.WithName(exportJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create periodic export job: %w", err)
	}
	s.jobID = job.ID()
	s.interval = interval
	return nil
}

// Interval returns the current job interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}
