// Package types provides domain models shared across Tripwire components.
//
// Zero-dependency design: types.go and errors.go use only the standard
// library. ID utilities in ids.go import uuid but are isolated so callers
// that only need the model types do not pull it in.
//
// Wire-format note: JSON tags on these types are the public API contract.
// Field names such as skipOnConsecutivesMatches are preserved verbatim for
// compatibility with existing rule definitions.
package types

import (
	"fmt"
	"time"
)

// EventTypeID represents a UUIDv7 event type identifier.
type EventTypeID string

// EventID represents a UUIDv7 event identifier.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type EventID string

// RuleID represents a UUIDv7 rule identifier.
type RuleID string

// TargetID represents a UUIDv7 target identifier.
type TargetID string

// ExecutionID represents a UUIDv7 rule execution identifier.
type ExecutionID string

// Payload represents an arbitrary flat JSON object reported with an event.
// The rule engine evaluates predicates directly against these keys.
type Payload map[string]any

// Resource limits enforced at the API boundary.
const (
	// MaxRuleNameLength bounds rule names for index-friendly storage.
	MaxRuleNameLength = 100

	// MaxPayloadSize limits event payload to prevent OOM during ingestion.
	MaxPayloadSize = 1024 * 1024
)

// EventType is a named category of events that rules can bind to.
type EventType struct {
	ID        EventTypeID `json:"id"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Event is an immutable record of one ingested occurrence.
// Created once per ingestion, never mutated, retained for a bounded TTL.
type Event struct {
	ID          EventID     `json:"id"`
	EventTypeID EventTypeID `json:"eventTypeId"`
	Payload     Payload     `json:"payload"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Target is an outbound HTTP webhook destination. Headers and Body may
// contain {{path.to.value}} placeholders rendered at dispatch time.
type Target struct {
	ID        TargetID          `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      any               `json:"body,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// WindowUnit is the time unit of a rule window.
type WindowUnit string

// Supported window units.
const (
	WindowUnitSecond WindowUnit = "second"
	WindowUnitMinute WindowUnit = "minute"
	WindowUnitHour   WindowUnit = "hour"
)

// WindowSize describes the extent of a sliding or tumbling window.
type WindowSize struct {
	Unit  WindowUnit `json:"unit"`
	Value int        `json:"value"`
}

// Duration converts the window size to a time.Duration.
// Unknown units yield zero; Validate rejects them before this is reached.
func (w WindowSize) Duration() time.Duration {
	switch w.Unit {
	case WindowUnitSecond:
		return time.Duration(w.Value) * time.Second
	case WindowUnitMinute:
		return time.Duration(w.Value) * time.Minute
	case WindowUnitHour:
		return time.Duration(w.Value) * time.Hour
	default:
		return 0
	}
}

// Interval renders the scheduler interval string, e.g. "1 second" or
// "10 hours". The unit is pluralized when value > 1.
func (w WindowSize) Interval() string {
	if w.Value > 1 {
		return fmt.Sprintf("%d %ss", w.Value, w.Unit)
	}
	return fmt.Sprintf("%d %s", w.Value, w.Unit)
}

// Validate checks unit membership and a positive value.
func (w WindowSize) Validate() error {
	switch w.Unit {
	case WindowUnitSecond, WindowUnitMinute, WindowUnitHour:
	default:
		return &ValidationError{Reason: fmt.Sprintf("'%s' is not a valid window unit", w.Unit)}
	}
	if w.Value <= 0 {
		return &ValidationError{Reason: "window value must be a positive integer"}
	}
	return nil
}

// RuleExecution is an immutable audit record of one rule evaluation
// occasion. Exactly one record is written per (rule, trigger), whether or
// not the rule matched, skipped, or dispatched. The most recent record is
// also the source of consecutive-match suppression state.
type RuleExecution struct {
	ID               ExecutionID `json:"id"`
	RuleID           RuleID      `json:"ruleId"`
	EventTypeID      EventTypeID `json:"eventTypeId"`
	ExecutedAt       time.Time   `json:"executedAt"`
	Match            bool        `json:"match"`
	Skip             bool        `json:"skip"`
	TargetID         TargetID    `json:"targetId,omitempty"`
	TargetSuccess    *bool       `json:"targetSuccess,omitempty"`
	TargetStatusCode *int        `json:"targetStatusCode,omitempty"`
}
