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

// RuleStore persists rule definitions. Filter and group specs are stored
// as JSON text columns; the window size is flattened into unit and value
// columns so tumbling rules can be listed without JSON decoding.
type RuleStore struct {
	q *db.Queries
}

type ruleRow struct {
	ID                       string         `db:"id"`
	Name                     string         `db:"name"`
	EventTypeID              string         `db:"event_type_id"`
	TargetID                 string         `db:"target_id"`
	Type                     string         `db:"type"`
	Filters                  sql.NullString `db:"filters"`
	SkipOnConsecutiveMatches bool           `db:"skip_on_consecutive_matches"`
	GroupSpec                sql.NullString `db:"group_spec"`
	WindowUnit               sql.NullString `db:"window_unit"`
	WindowValue              sql.NullInt64  `db:"window_value"`
	JobID                    string         `db:"job_id"`
	CreatedAt                time.Time      `db:"created_at"`
	UpdatedAt                time.Time      `db:"updated_at"`
}

func (r ruleRow) toDomain() (*types.Rule, error) {
	rule := &types.Rule{
		ID:                       types.RuleID(r.ID),
		Name:                     r.Name,
		EventTypeID:              types.EventTypeID(r.EventTypeID),
		TargetID:                 types.TargetID(r.TargetID),
		Type:                     types.RuleType(r.Type),
		SkipOnConsecutiveMatches: r.SkipOnConsecutiveMatches,
		JobID:                    r.JobID,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
	if r.Filters.Valid {
		if err := json.Unmarshal([]byte(r.Filters.String), &rule.Filters); err != nil {
			return nil, fmt.Errorf("decode filters of rule %s: %w", r.ID, err)
		}
	}
	if r.GroupSpec.Valid {
		if err := json.Unmarshal([]byte(r.GroupSpec.String), &rule.Group); err != nil {
			return nil, fmt.Errorf("decode group of rule %s: %w", r.ID, err)
		}
	}
	if r.WindowUnit.Valid && r.WindowValue.Valid {
		rule.WindowSize = &types.WindowSize{
			Unit:  types.WindowUnit(r.WindowUnit.String),
			Value: int(r.WindowValue.Int64),
		}
	}
	return rule, nil
}

// ruleColumns flattens a rule into insert/update arguments.
func ruleColumns(rule *types.Rule) (filters, group, windowUnit sql.NullString, windowValue sql.NullInt64, err error) {
	filters, err = marshalNullable(rule.Filters != nil, rule.Filters)
	if err != nil {
		err = fmt.Errorf("encode filters of rule %s: %w", rule.ID, err)
		return
	}
	group, err = marshalNullable(rule.Group != nil, rule.Group)
	if err != nil {
		err = fmt.Errorf("encode group of rule %s: %w", rule.ID, err)
		return
	}
	if rule.WindowSize != nil {
		windowUnit = sql.NullString{String: string(rule.WindowSize.Unit), Valid: true}
		windowValue = sql.NullInt64{Int64: int64(rule.WindowSize.Value), Valid: true}
	}
	return
}

// Insert persists a new rule. Rule names are unique; a name collision
// returns InvalidOperationError.
func (s *RuleStore) Insert(ctx context.Context, rule *types.Rule) error {
	filters, group, windowUnit, windowValue, err := ruleColumns(rule)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, "insert-rule",
		string(rule.ID), rule.Name, string(rule.EventTypeID), string(rule.TargetID),
		string(rule.Type), filters, rule.SkipOnConsecutiveMatches, group,
		windowUnit, windowValue, rule.JobID, utc(rule.CreatedAt), utc(rule.UpdatedAt))
	if db.IsUniqueViolation(err) {
		return types.NewInvalidOperationError("Rule '%s' already exists.", rule.Name)
	}
	return err
}

// Update persists changes to an existing rule.
func (s *RuleStore) Update(ctx context.Context, rule *types.Rule) error {
	filters, group, windowUnit, windowValue, err := ruleColumns(rule)
	if err != nil {
		return err
	}

	result, err := s.q.Exec(ctx, "update-rule",
		rule.Name, string(rule.EventTypeID), string(rule.TargetID),
		string(rule.Type), filters, rule.SkipOnConsecutiveMatches, group,
		windowUnit, windowValue, rule.JobID, utc(rule.UpdatedAt), string(rule.ID))
	if db.IsUniqueViolation(err) {
		return types.NewInvalidOperationError("Rule '%s' already exists.", rule.Name)
	}
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return types.NewNotFoundError("rule", string(rule.ID))
	}
	return nil
}

// SetJobID persists the scheduler handle of a tumbling rule.
func (s *RuleStore) SetJobID(ctx context.Context, id types.RuleID, jobID string) error {
	result, err := s.q.Exec(ctx, "set-rule-job-id", jobID, string(id))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return types.NewNotFoundError("rule", string(id))
	}
	return nil
}

// FindByID returns NotFoundError when the rule does not exist.
func (s *RuleStore) FindByID(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row ruleRow
	if err := s.q.Get(ctx, "get-rule", &row, string(id)); err != nil {
		return nil, notFound(err, "rule", string(id))
	}
	return row.toDomain()
}

// List returns all rules ordered by creation.
func (s *RuleStore) List(ctx context.Context) ([]types.Rule, error) {
	return s.selectRules(ctx, "list-rules")
}

// FindTriggeredByEventType returns the realtime and sliding rules bound to
// an event type. Tumbling rules never trigger on ingestion, only on
// scheduler ticks.
func (s *RuleStore) FindTriggeredByEventType(ctx context.Context, eventTypeID types.EventTypeID) ([]types.Rule, error) {
	return s.selectRules(ctx, "list-rules-triggered-by-event-type", string(eventTypeID))
}

// ListTumbling returns all tumbling rules, for schedule resync at boot.
func (s *RuleStore) ListTumbling(ctx context.Context) ([]types.Rule, error) {
	return s.selectRules(ctx, "list-tumbling-rules")
}

// Delete removes a rule. Its execution history cascades away with it.
func (s *RuleStore) Delete(ctx context.Context, id types.RuleID) error {
	result, err := s.q.Exec(ctx, "delete-rule", string(id))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return types.NewNotFoundError("rule", string(id))
	}
	return nil
}

func (s *RuleStore) selectRules(ctx context.Context, query string, args ...interface{}) ([]types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, query, &rows, args...); err != nil {
		return nil, err
	}
	out := make([]types.Rule, len(rows))
	for i, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = *rule
	}
	return out, nil
}
