package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tripwirehq/tripwire/internal/core/db"
	"github.com/tripwirehq/tripwire/internal/types"
)

// DefaultExecutionPageSize bounds execution history listings.
const DefaultExecutionPageSize = 100

// ExecutionStore persists the append-only rule execution log. The latest
// record per rule doubles as consecutive-match suppression state, so
// FindLatest orders by executed_at with the UUIDv7 id as tiebreaker.
type ExecutionStore struct {
	q *db.Queries
}

type executionRow struct {
	ID               string         `db:"id"`
	RuleID           string         `db:"rule_id"`
	EventTypeID      string         `db:"event_type_id"`
	ExecutedAt       time.Time      `db:"executed_at"`
	Matched          bool           `db:"matched"`
	Skip             bool           `db:"skip"`
	TargetID         sql.NullString `db:"target_id"`
	TargetSuccess    sql.NullBool   `db:"target_success"`
	TargetStatusCode sql.NullInt64  `db:"target_status_code"`
}

func (r executionRow) toDomain() *types.RuleExecution {
	execution := &types.RuleExecution{
		ID:          types.ExecutionID(r.ID),
		RuleID:      types.RuleID(r.RuleID),
		EventTypeID: types.EventTypeID(r.EventTypeID),
		ExecutedAt:  r.ExecutedAt,
		Match:       r.Matched,
		Skip:        r.Skip,
	}
	if r.TargetID.Valid {
		execution.TargetID = types.TargetID(r.TargetID.String)
	}
	if r.TargetSuccess.Valid {
		success := r.TargetSuccess.Bool
		execution.TargetSuccess = &success
	}
	if r.TargetStatusCode.Valid {
		code := int(r.TargetStatusCode.Int64)
		execution.TargetStatusCode = &code
	}
	return execution
}

// Append persists one execution record.
func (s *ExecutionStore) Append(ctx context.Context, execution *types.RuleExecution) error {
	var targetID sql.NullString
	if execution.TargetID != "" {
		targetID = sql.NullString{String: string(execution.TargetID), Valid: true}
	}
	var targetSuccess sql.NullBool
	if execution.TargetSuccess != nil {
		targetSuccess = sql.NullBool{Bool: *execution.TargetSuccess, Valid: true}
	}
	var targetStatusCode sql.NullInt64
	if execution.TargetStatusCode != nil {
		targetStatusCode = sql.NullInt64{Int64: int64(*execution.TargetStatusCode), Valid: true}
	}

	_, err := s.q.Exec(ctx, "insert-rule-execution",
		string(execution.ID), string(execution.RuleID), string(execution.EventTypeID),
		utc(execution.ExecutedAt), execution.Match, execution.Skip,
		targetID, targetSuccess, targetStatusCode)
	return err
}

// FindLatest returns the most recent execution of a rule, or (nil, nil)
// when the rule has no history.
func (s *ExecutionStore) FindLatest(ctx context.Context, ruleID types.RuleID) (*types.RuleExecution, error) {
	var row executionRow
	if err := s.q.Get(ctx, "get-latest-rule-execution", &row, string(ruleID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListByRule returns up to limit executions of a rule, newest first.
func (s *ExecutionStore) ListByRule(ctx context.Context, ruleID types.RuleID, limit int) ([]types.RuleExecution, error) {
	if limit <= 0 {
		limit = DefaultExecutionPageSize
	}
	var rows []executionRow
	if err := s.q.Select(ctx, "list-rule-executions", &rows, string(ruleID), limit); err != nil {
		return nil, err
	}
	out := make([]types.RuleExecution, len(rows))
	for i, row := range rows {
		out[i] = *row.toDomain()
	}
	return out, nil
}
