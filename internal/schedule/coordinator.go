// Package schedule keeps recurring jobs in sync with rule lifecycle.
//
// Invariant: exactly one active recurring job exists per tumbling rule,
// firing at the rule's window cadence and invoking the dispatch engine's
// scheduled-execution entry point. Realtime and sliding rules pass through
// the coordinator unchanged so the API has a single rule lifecycle surface.
package schedule

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tripwirehq/tripwire/internal/types"
)

// Scheduler is the recurring-job backend contract the coordinator
// consumes. Handles are opaque; the gocron implementation returns job
// UUIDs.
type Scheduler interface {
	// ScheduleRecurring registers a recurring job firing at the interval
	// ("<value> <unit>(s)"), carrying the rule ID as its payload.
	ScheduleRecurring(interval string, ruleID types.RuleID) (jobID string, err error)

	// Cancel removes a previously scheduled job.
	Cancel(jobID string) error
}

// RuleStore is the persistence surface the coordinator drives.
type RuleStore interface {
	Insert(ctx context.Context, rule *types.Rule) error
	Update(ctx context.Context, rule *types.Rule) error
	Delete(ctx context.Context, id types.RuleID) error
	FindByID(ctx context.Context, id types.RuleID) (*types.Rule, error)
	ListTumbling(ctx context.Context) ([]types.Rule, error)

	// SetJobID persists the scheduler handle of a tumbling rule.
	SetJobID(ctx context.Context, id types.RuleID, jobID string) error
}

// Coordinator owns rule lifecycle, including the two-phase tumbling
// mutations (store write + scheduler call) with explicit compensation.
type Coordinator struct {
	scheduler Scheduler
	rules     RuleStore
	log       zerolog.Logger
}

// NewCoordinator creates a schedule coordinator.
func NewCoordinator(scheduler Scheduler, rules RuleStore, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		scheduler: scheduler,
		rules:     rules,
		log:       logger.With().Str("component", "schedule").Logger(),
	}
}

// CreateRule persists a rule and, for tumbling rules, schedules its
// recurring job. Scheduling failure rolls the insert back so no orphaned,
// unscheduled tumbling rule survives; the scheduler error is surfaced.
func (c *Coordinator) CreateRule(ctx context.Context, rule *types.Rule) error {
	if err := c.rules.Insert(ctx, rule); err != nil {
		return err
	}
	if rule.Type != types.RuleTypeTumbling {
		return nil
	}

	jobID, err := c.scheduler.ScheduleRecurring(rule.WindowSize.Interval(), rule.ID)
	if err != nil {
		// Compensating action: the insert must not outlive the failed
		// scheduling call.
		if deleteErr := c.rules.Delete(ctx, rule.ID); deleteErr != nil {
			c.log.Error().Err(deleteErr).
				Str("rule_id", string(rule.ID)).
				Msg("rollback of unscheduled tumbling rule failed")
		}
		return fmt.Errorf("schedule job for rule %s: %w", rule.ID, err)
	}

	rule.JobID = jobID
	if err := c.rules.SetJobID(ctx, rule.ID, jobID); err != nil {
		// Unwind both phases: a job without a persisted handle could never
		// be cancelled later, and the rule must not survive half-created.
		if cancelErr := c.scheduler.Cancel(jobID); cancelErr != nil {
			c.log.Error().Err(cancelErr).
				Str("rule_id", string(rule.ID)).
				Str("job_id", jobID).
				Msg("rollback cancellation of scheduled job failed")
		}
		if deleteErr := c.rules.Delete(ctx, rule.ID); deleteErr != nil {
			c.log.Error().Err(deleteErr).
				Str("rule_id", string(rule.ID)).
				Msg("rollback of unscheduled tumbling rule failed")
		}
		return fmt.Errorf("persist job id for rule %s: %w", rule.ID, err)
	}

	c.log.Info().
		Str("rule_id", string(rule.ID)).
		Str("job_id", jobID).
		Str("interval", rule.WindowSize.Interval()).
		Msg("scheduled tumbling rule")
	return nil
}

// UpdateRule persists rule changes and reconciles the recurring job: the
// job is cancelled and rescheduled only when the cadence actually changed
// (or the rule moved into/out of the tumbling type); otherwise no
// scheduler interaction occurs.
func (c *Coordinator) UpdateRule(ctx context.Context, rule *types.Rule) error {
	existing, err := c.rules.FindByID(ctx, rule.ID)
	if err != nil {
		return err
	}

	wasTumbling := existing.Type == types.RuleTypeTumbling
	isTumbling := rule.Type == types.RuleTypeTumbling

	// Tracks a job scheduled within this call so a failed persist can
	// cancel it again.
	var freshJobID string

	switch {
	case wasTumbling && !isTumbling:
		if err := c.cancelJob(existing); err != nil {
			return err
		}
		rule.JobID = ""

	case !wasTumbling && isTumbling:
		jobID, err := c.scheduler.ScheduleRecurring(rule.WindowSize.Interval(), rule.ID)
		if err != nil {
			return fmt.Errorf("schedule job for rule %s: %w", rule.ID, err)
		}
		rule.JobID = jobID
		freshJobID = jobID

	case wasTumbling && isTumbling && cadenceChanged(existing, rule):
		if err := c.cancelJob(existing); err != nil {
			return err
		}
		jobID, err := c.scheduler.ScheduleRecurring(rule.WindowSize.Interval(), rule.ID)
		if err != nil {
			return fmt.Errorf("reschedule job for rule %s: %w", rule.ID, err)
		}
		rule.JobID = jobID
		freshJobID = jobID

	default:
		rule.JobID = existing.JobID
	}

	if err := c.rules.Update(ctx, rule); err != nil {
		// The fresh job must not outlive the failed persist: nothing would
		// hold its handle, so it could never be cancelled afterwards.
		if freshJobID != "" {
			if cancelErr := c.scheduler.Cancel(freshJobID); cancelErr != nil {
				c.log.Error().Err(cancelErr).
					Str("rule_id", string(rule.ID)).
					Str("job_id", freshJobID).
					Msg("rollback cancellation of scheduled job failed")
			}
		}
		return err
	}
	return nil
}

// DeleteRule cancels a tumbling rule's job before deleting the rule
// record. Cancellation failure blocks the deletion: a rule is never
// removed while its job is still scheduled, and a job never outlives its
// rule.
func (c *Coordinator) DeleteRule(ctx context.Context, id types.RuleID) error {
	rule, err := c.rules.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if rule.Type == types.RuleTypeTumbling {
		if err := c.cancelJob(rule); err != nil {
			return err
		}
	}

	return c.rules.Delete(ctx, id)
}

// Resync re-registers one recurring job per persisted tumbling rule.
// Job handles are process-local, so a restart re-creates every job and
// persists the fresh IDs.
func (c *Coordinator) Resync(ctx context.Context) error {
	rules, err := c.rules.ListTumbling(ctx)
	if err != nil {
		return fmt.Errorf("list tumbling rules: %w", err)
	}

	for _, rule := range rules {
		jobID, err := c.scheduler.ScheduleRecurring(rule.WindowSize.Interval(), rule.ID)
		if err != nil {
			return fmt.Errorf("resync job for rule %s: %w", rule.ID, err)
		}
		if err := c.rules.SetJobID(ctx, rule.ID, jobID); err != nil {
			return err
		}
		c.log.Info().
			Str("rule_id", string(rule.ID)).
			Str("job_id", jobID).
			Msg("resynced tumbling rule job")
	}
	return nil
}

// cancelJob cancels the rule's scheduled job if it has one.
func (c *Coordinator) cancelJob(rule *types.Rule) error {
	if rule.JobID == "" {
		return nil
	}
	if err := c.scheduler.Cancel(rule.JobID); err != nil {
		return fmt.Errorf("cancel job %s for rule %s: %w", rule.JobID, rule.ID, err)
	}
	return nil
}

// cadenceChanged reports whether the window cadence differs between two
// tumbling rule versions.
func cadenceChanged(existing, updated *types.Rule) bool {
	if existing.WindowSize == nil || updated.WindowSize == nil {
		return existing.WindowSize != updated.WindowSize
	}
	return *existing.WindowSize != *updated.WindowSize
}
