package types

import (
	"errors"
	"fmt"
)

/*
 * Error taxonomy for Tripwire operations.
 *
 * Four caller-visible categories, each mapped to a transport status by the
 * API layer:
 *   - PredicateError:      malformed filter spec (compile time)  -> 400
 *   - PredicateMatchError: data shape invalid at match time       -> 400
 *   - ValidationError:     malformed rule/target/event payload    -> 400
 *   - NotFoundError:       referenced entity absent               -> 404
 *   - InvalidOperationError: operation conflicts with state       -> 409
 *
 * PredicateError and PredicateMatchError are deliberately distinct: the
 * former depends only on the spec and fails fast at rule creation, the
 * latter depends on event data and can only surface during evaluation.
 *
 * Target and scheduler failures during normal dispatch are never modeled
 * as errors here; they are captured in RuleExecution records. Only
 * scheduler failures during tumbling lifecycle mutations propagate.
 */

// PredicateError indicates a malformed filter specification, detected at
// compile time. Never retried; surfaced to the rule-authoring caller.
type PredicateError struct {
	Reason string
}

func (e *PredicateError) Error() string {
	return "invalid filter: " + e.Reason
}

// NewPredicateError creates a PredicateError with a formatted reason.
func NewPredicateError(format string, args ...any) *PredicateError {
	return &PredicateError{Reason: fmt.Sprintf(format, args...)}
}

// PredicateMatchError indicates event data whose shape is invalid for an
// operator at match time (e.g. a _near candidate that is not a location).
// Distinct from PredicateError because it depends on the data, not the spec.
type PredicateMatchError struct {
	Reason string
}

func (e *PredicateMatchError) Error() string {
	return "cannot match filter: " + e.Reason
}

// NewPredicateMatchError creates a PredicateMatchError with a formatted reason.
func NewPredicateMatchError(format string, args ...any) *PredicateMatchError {
	return &PredicateMatchError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError indicates a structurally invalid entity submitted by the
// caller (rule, target, event type, or event payload).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NotFoundError indicates an absent entity referenced by ID.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
}

// NewNotFoundError creates a NotFoundError for the given resource and ID.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InvalidOperationError indicates an operation that conflicts with current
// state, e.g. executing a non-tumbling rule via the scheduled path or
// deleting an entity still referenced by a rule.
type InvalidOperationError struct {
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return e.Reason
}

// NewInvalidOperationError creates an InvalidOperationError with a
// formatted reason.
func NewInvalidOperationError(format string, args ...any) *InvalidOperationError {
	return &InvalidOperationError{Reason: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Sentinel errors for ingestion limits.
var (
	// ErrPayloadTooLarge indicates the event payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
)
