package types

import (
	"github.com/google/uuid"
)

// NewEventID generates a UUIDv7 event identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewEventID() EventID {
	return EventID(uuid.Must(uuid.NewV7()).String())
}

// NewEventTypeID generates a UUIDv7 event type identifier.
func NewEventTypeID() EventTypeID {
	return EventTypeID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleID generates a UUIDv7 rule identifier.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewTargetID generates a UUIDv7 target identifier.
func NewTargetID() TargetID {
	return TargetID(uuid.Must(uuid.NewV7()).String())
}

// NewExecutionID generates a UUIDv7 rule execution identifier.
func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.Must(uuid.NewV7()).String())
}

// ParseEventTypeID validates and converts a string to EventTypeID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseEventTypeID(s string) (EventTypeID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return EventTypeID(s), nil
}

// ParseRuleID validates and converts a string to RuleID.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// ParseTargetID validates and converts a string to TargetID.
func ParseTargetID(s string) (TargetID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return TargetID(s), nil
}
