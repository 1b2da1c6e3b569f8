package schedule

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tripwirehq/tripwire/internal/types"
)

// TickHandler receives one callback per scheduler tick, carrying the rule
// the tick belongs to. The dispatch engine's ExecuteScheduled satisfies
// this.
type TickHandler func(ctx context.Context, ruleID types.RuleID) error

// GocronScheduler implements Scheduler on top of gocron. Job handles are
// gocron's job UUIDs rendered as strings.
type GocronScheduler struct {
	scheduler gocron.Scheduler
	handler   TickHandler
	log       zerolog.Logger
}

// NewGocronScheduler creates a scheduler whose jobs invoke the given tick
// handler. The scheduler does not fire until Start is called.
func NewGocronScheduler(handler TickHandler, logger zerolog.Logger) (*GocronScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &GocronScheduler{
		scheduler: scheduler,
		handler:   handler,
		log:       logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// ScheduleRecurring implements Scheduler.
func (s *GocronScheduler) ScheduleRecurring(interval string, ruleID types.RuleID) (string, error) {
	duration, err := ParseInterval(interval)
	if err != nil {
		return "", err
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(duration),
		gocron.NewTask(func() {
			ctx := context.Background()
			if err := s.handler(ctx, ruleID); err != nil {
				s.log.Error().Err(err).
					Str("rule_id", string(ruleID)).
					Msg("scheduled execution failed")
			}
		}),
	)
	if err != nil {
		return "", fmt.Errorf("schedule recurring job: %w", err)
	}
	return job.ID().String(), nil
}

// Cancel implements Scheduler.
func (s *GocronScheduler) Cancel(jobID string) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("malformed job id %q: %w", jobID, err)
	}
	if err := s.scheduler.RemoveJob(id); err != nil {
		return fmt.Errorf("remove job %s: %w", jobID, err)
	}
	return nil
}

// Start begins firing scheduled jobs.
func (s *GocronScheduler) Start() {
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *GocronScheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}
