// Package store implements the persistence layer on top of the named-query
// database access in internal/core/db.
//
// One store per aggregate: event types, targets, rules, events, and rule
// executions. Stores translate between domain types and row structs,
// marshal JSON columns, and map sql.ErrNoRows to NotFoundError so callers
// never see driver-level sentinels.
//
// Referential integrity is enforced twice: foreign keys in the schema as a
// backstop, and explicit reference counting in the stores so deletions of
// in-use event types and targets fail with InvalidOperationError instead
// of a driver error.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tripwirehq/tripwire/internal/core/db"
	"github.com/tripwirehq/tripwire/internal/types"
)

// Stores bundles all persistence stores over one database connection.
type Stores struct {
	EventTypes *EventTypeStore
	Targets    *TargetStore
	Rules      *RuleStore
	Events     *EventStore
	Executions *ExecutionStore

	q *db.Queries
}

// New creates the store bundle.
func New(q *db.Queries) *Stores {
	return &Stores{
		EventTypes: &EventTypeStore{q: q},
		Targets:    &TargetStore{q: q},
		Rules:      &RuleStore{q: q},
		Events:     &EventStore{q: q},
		Executions: &ExecutionStore{q: q},
		q:          q,
	}
}

// Ping verifies database reachability, for health checks.
func (s *Stores) Ping(ctx context.Context) error {
	return s.q.DB().PingContext(ctx)
}

// notFound translates sql.ErrNoRows into the domain NotFoundError.
func notFound(err error, resource, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return types.NewNotFoundError(resource, id)
	}
	return err
}

// utc normalizes a timestamp for storage. Both drivers round-trip UTC
// time values; local zones would make SQLite's lexicographic range scans
// unreliable.
func utc(t time.Time) time.Time {
	return t.UTC()
}
