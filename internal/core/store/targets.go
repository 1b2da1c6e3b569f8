package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tripwirehq/tripwire/internal/core/db"
	"github.com/tripwirehq/tripwire/internal/types"
)

// TargetStore persists webhook target definitions. Headers and body
// templates are stored as JSON text columns.
type TargetStore struct {
	q *db.Queries
}

type targetRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	URL       string         `db:"url"`
	Headers   sql.NullString `db:"headers"`
	Body      sql.NullString `db:"body"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r targetRow) toDomain() (*types.Target, error) {
	target := &types.Target{
		ID:        types.TargetID(r.ID),
		Name:      r.Name,
		URL:       r.URL,
		CreatedAt: r.CreatedAt,
	}
	if r.Headers.Valid {
		if err := json.Unmarshal([]byte(r.Headers.String), &target.Headers); err != nil {
			return nil, fmt.Errorf("decode headers of target %s: %w", r.ID, err)
		}
	}
	if r.Body.Valid {
		if err := json.Unmarshal([]byte(r.Body.String), &target.Body); err != nil {
			return nil, fmt.Errorf("decode body of target %s: %w", r.ID, err)
		}
	}
	return target, nil
}

// Insert persists a new target.
func (s *TargetStore) Insert(ctx context.Context, target *types.Target) error {
	headers, err := marshalNullable(target.Headers != nil, target.Headers)
	if err != nil {
		return fmt.Errorf("encode headers of target %s: %w", target.ID, err)
	}
	body, err := marshalNullable(target.Body != nil, target.Body)
	if err != nil {
		return fmt.Errorf("encode body of target %s: %w", target.ID, err)
	}

	_, err = s.q.Exec(ctx, "insert-target",
		string(target.ID), target.Name, target.URL, headers, body, utc(target.CreatedAt))
	return err
}

// FindByID returns NotFoundError when the target does not exist.
func (s *TargetStore) FindByID(ctx context.Context, id types.TargetID) (*types.Target, error) {
	var row targetRow
	if err := s.q.Get(ctx, "get-target", &row, string(id)); err != nil {
		return nil, notFound(err, "target", string(id))
	}
	return row.toDomain()
}

// List returns all targets ordered by creation.
func (s *TargetStore) List(ctx context.Context) ([]types.Target, error) {
	var rows []targetRow
	if err := s.q.Select(ctx, "list-targets", &rows); err != nil {
		return nil, err
	}
	out := make([]types.Target, len(rows))
	for i, row := range rows {
		target, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = *target
	}
	return out, nil
}

// Delete removes a target. Deletion is refused while rules still
// reference it.
func (s *TargetStore) Delete(ctx context.Context, id types.TargetID) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}

	var referencing int
	if err := s.q.Get(ctx, "count-rules-by-target", &referencing, string(id)); err != nil {
		return err
	}
	if referencing > 0 {
		return types.NewInvalidOperationError(
			"Cannot delete target '%s': %d rule(s) still reference it.", id, referencing)
	}

	_, err := s.q.Exec(ctx, "delete-target", string(id))
	return err
}

// marshalNullable encodes a value as JSON text, or NULL when absent.
func marshalNullable(present bool, value any) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}
