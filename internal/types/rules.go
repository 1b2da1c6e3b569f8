// internal/types/rules.go
package types

import (
	"fmt"
	"strings"
	"time"
)

/*
 * Domain types for rule definitions.
 *
 * Provides Rule and its lifecycle validation, shared by the predicate
 * compiler, the window aggregation engine, the dispatch engine, and the
 * schedule coordinator. These types are wire-format compatible: the JSON
 * tags match the public rule API exactly.
 *
 * Key types:
 *   - RuleType: realtime, sliding, tumbling
 *   - Rule: named binding of event type + predicate/aggregation + target
 *
 * Filters and Group are kept as raw JSON object trees (map[string]any);
 * internal/predicate and internal/window own their compilation and
 * validation. Rule.Validate covers only the structural rule-level
 * invariants that do not require those engines.
 */

// RuleType discriminates how a rule is triggered and what record its
// predicate is evaluated against.
type RuleType string

// Supported rule types.
const (
	// RuleTypeRealtime evaluates against each raw incoming event.
	RuleTypeRealtime RuleType = "realtime"

	// RuleTypeSliding evaluates against a trailing-window aggregate,
	// recomputed on every incoming event.
	RuleTypeSliding RuleType = "sliding"

	// RuleTypeTumbling evaluates against a fixed-cadence window aggregate,
	// triggered by the scheduler independent of event arrival.
	RuleTypeTumbling RuleType = "tumbling"
)

// Rule is a named binding of an event type, an optional predicate (or a
// windowed aggregation plus predicate), and a target to invoke on match.
type Rule struct {
	ID          RuleID      `json:"id"`
	Name        string      `json:"name"`
	EventTypeID EventTypeID `json:"eventTypeId"`
	TargetID    TargetID    `json:"targetId"`
	Type        RuleType    `json:"type"`

	// Filters is the raw predicate spec; nil matches everything.
	Filters map[string]any `json:"filters,omitempty"`

	// SkipOnConsecutiveMatches enables edge-triggered suppression: only
	// the first of a contiguous run of matches dispatches. Realtime and
	// sliding rules only; tumbling windows are independent occasions.
	SkipOnConsecutiveMatches bool `json:"skipOnConsecutivesMatches"`

	// Group maps result field -> aggregation spec. Sliding/tumbling only.
	Group map[string]any `json:"group,omitempty"`

	// WindowSize is the window extent. Sliding/tumbling only.
	WindowSize *WindowSize `json:"windowSize,omitempty"`

	// JobID is the opaque scheduler handle of the recurring job backing a
	// tumbling rule. Empty for realtime/sliding rules.
	JobID string `json:"jobId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsWindowed reports whether the rule evaluates aggregates rather than
// raw event payloads.
func (r *Rule) IsWindowed() bool {
	return r.Type == RuleTypeSliding || r.Type == RuleTypeTumbling
}

// Validate checks rule-level structural invariants. Predicate and group
// spec contents are validated by their owning engines at compile time.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return &ValidationError{Reason: "rule name is required"}
	}
	if len(r.Name) > MaxRuleNameLength {
		return &ValidationError{Reason: fmt.Sprintf("rule name exceeds %d characters", MaxRuleNameLength)}
	}
	if r.EventTypeID == "" {
		return &ValidationError{Reason: "eventTypeId is required"}
	}
	if r.TargetID == "" {
		return &ValidationError{Reason: "targetId is required"}
	}

	switch r.Type {
	case RuleTypeRealtime:
		if r.Group != nil || r.WindowSize != nil {
			return &ValidationError{Reason: "realtime rules cannot declare group or windowSize"}
		}
	case RuleTypeSliding, RuleTypeTumbling:
		if len(r.Group) == 0 {
			return &ValidationError{Reason: fmt.Sprintf("%s rules require a group", r.Type)}
		}
		if r.WindowSize == nil {
			return &ValidationError{Reason: fmt.Sprintf("%s rules require a windowSize", r.Type)}
		}
		if err := r.WindowSize.Validate(); err != nil {
			return err
		}
		if r.Type == RuleTypeTumbling && r.SkipOnConsecutiveMatches {
			return &ValidationError{Reason: "tumbling rules do not support skipOnConsecutivesMatches"}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("'%s' is not a valid rule type", r.Type)}
	}

	// Result fields with a leading underscore would collide with the
	// operator namespace in predicates evaluated over the aggregate.
	for field := range r.Group {
		if strings.HasPrefix(field, "_") {
			return &ValidationError{Reason: fmt.Sprintf("group field '%s' cannot start with '_'", field)}
		}
	}

	return nil
}
