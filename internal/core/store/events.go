package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tripwirehq/tripwire/internal/core/db"
	"github.com/tripwirehq/tripwire/internal/types"
)

// EventStore persists ingested events. Events are immutable; the only
// mutation is the TTL sweep.
type EventStore struct {
	q *db.Queries
}

type eventRow struct {
	ID          string    `db:"id"`
	EventTypeID string    `db:"event_type_id"`
	Payload     string    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r eventRow) toDomain() (*types.Event, error) {
	event := &types.Event{
		ID:          types.EventID(r.ID),
		EventTypeID: types.EventTypeID(r.EventTypeID),
		CreatedAt:   r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Payload), &event.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of event %s: %w", r.ID, err)
	}
	return event, nil
}

// Insert persists a new event.
func (s *EventStore) Insert(ctx context.Context, event *types.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload of event %s: %w", event.ID, err)
	}
	_, err = s.q.Exec(ctx, "insert-event",
		string(event.ID), string(event.EventTypeID), string(payload), utc(event.CreatedAt))
	return err
}

// FindByTypeAndWindow returns the events of one type inside the half-open
// interval [start, end), ordered by creation time. This is the fetch the
// window aggregation engine runs per evaluation.
func (s *EventStore) FindByTypeAndWindow(ctx context.Context, eventTypeID types.EventTypeID, start, end time.Time) ([]types.Event, error) {
	var rows []eventRow
	if err := s.q.Select(ctx, "list-events-by-type-and-window", &rows,
		string(eventTypeID), utc(start), utc(end)); err != nil {
		return nil, err
	}
	out := make([]types.Event, len(rows))
	for i, row := range rows {
		event, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = *event
	}
	return out, nil
}

// DeleteOlderThan removes events created before the cutoff and reports how
// many were swept.
func (s *EventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.q.Exec(ctx, "delete-events-older-than", utc(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
