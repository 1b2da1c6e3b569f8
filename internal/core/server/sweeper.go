package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EventPruner deletes events older than a cutoff and reports the count.
type EventPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventSweeper periodically removes events past their retention TTL.
// Events only feed window aggregation, so anything older than the largest
// plausible window is dead weight.
type EventSweeper struct {
	pruner   EventPruner
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// NewEventSweeper creates a sweeper removing events older than ttl,
// checking once per interval.
func NewEventSweeper(pruner EventPruner, ttl, interval time.Duration, logger zerolog.Logger) *EventSweeper {
	return &EventSweeper{
		pruner:   pruner,
		ttl:      ttl,
		interval: interval,
		log:      logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps until the context is cancelled. One sweep runs immediately
// so a restart with a shortened TTL takes effect without waiting a full
// interval.
func (s *EventSweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *EventSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)
	swept, err := s.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("event sweep failed")
		}
		return
	}
	if swept > 0 {
		s.log.Info().Int64("swept", swept).Time("cutoff", cutoff).Msg("swept expired events")
	}
}
