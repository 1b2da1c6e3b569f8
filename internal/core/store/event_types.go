package store

import (
	"context"
	"time"

	"github.com/tripwirehq/tripwire/internal/core/db"
	"github.com/tripwirehq/tripwire/internal/types"
)

// EventTypeStore persists event type definitions.
type EventTypeStore struct {
	q *db.Queries
}

type eventTypeRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r eventTypeRow) toDomain() *types.EventType {
	return &types.EventType{
		ID:        types.EventTypeID(r.ID),
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
}

// Insert persists a new event type.
func (s *EventTypeStore) Insert(ctx context.Context, et *types.EventType) error {
	_, err := s.q.Exec(ctx, "insert-event-type", string(et.ID), et.Name, utc(et.CreatedAt))
	return err
}

// FindByID returns NotFoundError when the event type does not exist.
func (s *EventTypeStore) FindByID(ctx context.Context, id types.EventTypeID) (*types.EventType, error) {
	var row eventTypeRow
	if err := s.q.Get(ctx, "get-event-type", &row, string(id)); err != nil {
		return nil, notFound(err, "event type", string(id))
	}
	return row.toDomain(), nil
}

// FindByName returns NotFoundError when no event type carries the name.
func (s *EventTypeStore) FindByName(ctx context.Context, name string) (*types.EventType, error) {
	var row eventTypeRow
	if err := s.q.Get(ctx, "get-event-type-by-name", &row, name); err != nil {
		return nil, notFound(err, "event type", name)
	}
	return row.toDomain(), nil
}

// List returns all event types ordered by creation.
func (s *EventTypeStore) List(ctx context.Context) ([]types.EventType, error) {
	var rows []eventTypeRow
	if err := s.q.Select(ctx, "list-event-types", &rows); err != nil {
		return nil, err
	}
	out := make([]types.EventType, len(rows))
	for i, row := range rows {
		out[i] = *row.toDomain()
	}
	return out, nil
}

// Delete removes an event type. Deletion is refused while rules still
// reference it; ingested events cascade away with their type.
func (s *EventTypeStore) Delete(ctx context.Context, id types.EventTypeID) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}

	var referencing int
	if err := s.q.Get(ctx, "count-rules-by-event-type", &referencing, string(id)); err != nil {
		return err
	}
	if referencing > 0 {
		return types.NewInvalidOperationError(
			"Cannot delete event type '%s': %d rule(s) still reference it.", id, referencing)
	}

	_, err := s.q.Exec(ctx, "delete-event-type", string(id))
	return err
}
