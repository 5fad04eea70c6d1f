// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
)

// Job is one periodic task
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler runs a fixed set of jobs until its context ends
type Scheduler struct {
	jobs []Job
}

// New validates the jobs and returns a scheduler for them
func New(jobs ...Job) (*Scheduler, error) {
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			return nil, errors.New("scheduler job requires a name and a run func")
		}
		if job.Every <= 0 {
			return nil, fmt.Errorf("scheduler job %s: interval must be > 0", job.Name)
		}
	}
	return &Scheduler{jobs: jobs}, nil
}

// Run starts every job and blocks until ctx is cancelled. A run that is still
// going when the next tick fires is not overlapped.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logger.Component("scheduler")

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	for _, job := range s.jobs {
		job := job
		_, err := sched.NewJob(
			gocron.DurationJob(job.Every),
			gocron.NewTask(func() {
				start := time.Now()
				if err := job.Run(ctx); err != nil {
					log.Error().
						Err(err).
						Str("job", job.Name).
						Msg("Scheduled job failed")
					return
				}
				log.Debug().
					Str("job", job.Name).
					Dur("duration", time.Since(start)).
					Msg("Scheduled job finished")
			}),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
	}

	sched.Start()
	log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")

	<-ctx.Done()

	log.Info().Msg("Scheduler stopping")
	return sched.Shutdown()
}
