// internal/predicate/match.go
package predicate

import (
	"reflect"

	"github.com/tripwirehq/tripwire/internal/types"
)

/*
 * Predicate evaluation.
 *
 * Evaluates the compiled node tree against a flat record with
 * short-circuit semantics: _and stops at the first non-match, _or stops at
 * the first match, left-to-right in sorted-key order fixed at compile time.
 *
 * Leaf semantics:
 *   - A field whose stored value is falsy (zero value of its type) is
 *     treated as absent and fails the leaf. Preserved legacy behavior so
 *     that existing rules keep their meaning; an _eq:0 filter therefore
 *     never matches. Documented in match_test.go.
 *   - All operators on one field must hold (conjunction).
 *   - Unknown operators fail with PredicateMatchError even though
 *     compilation already rejects them (defense in depth).
 *
 * Numeric comparison: float64/int/int64 mix freely, matching JSON
 * unmarshaling output. Ordered comparisons against non-numeric stored
 * values never match.
 */

// Match evaluates the predicate against a record.
// A predicate compiled from a nil spec matches everything, including a nil
// record. Any other predicate fails an absent or empty record.
func (p *Predicate) Match(record map[string]any) (bool, error) {
	if p.root == nil {
		return true, nil
	}
	if len(record) == 0 {
		return false, nil
	}
	return p.root.match(record)
}

func (n *andNode) match(record map[string]any) (bool, error) {
	for _, child := range n.children {
		ok, err := child.match(record)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (n *orNode) match(record map[string]any) (bool, error) {
	for _, child := range n.children {
		ok, err := child.match(record)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (n *leafNode) match(record map[string]any) (bool, error) {
	value, present := record[n.field]
	if !present || isFalsy(value) {
		return false, nil
	}

	for _, check := range n.checks {
		ok, err := applyCheck(check, value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// applyCheck applies a single compiled operator to a present field value.
func applyCheck(check opCheck, value any) (bool, error) {
	switch check.op {
	case OpEq:
		return looseEqual(value, check.operand), nil
	case OpGt:
		cmp, ok := compareNumeric(value, check.operand)
		return ok && cmp > 0, nil
	case OpGte:
		cmp, ok := compareNumeric(value, check.operand)
		return ok && cmp >= 0, nil
	case OpLt:
		cmp, ok := compareNumeric(value, check.operand)
		return ok && cmp < 0, nil
	case OpLte:
		cmp, ok := compareNumeric(value, check.operand)
		return ok && cmp <= 0, nil
	case OpNear:
		return check.near.match(value)
	default:
		return false, types.NewPredicateMatchError("'%s' is not a valid filter operator", check.op)
	}
}

// isFalsy reports whether a stored value is the zero value of its type.
// nil, false, numeric zero, and "" all count as absent at match time.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case float64:
		return t == 0
	case float32:
		return t == 0
	case int:
		return t == 0
	case int32:
		return t == 0
	case int64:
		return t == 0
	default:
		return false
	}
}

// looseEqual performs equality comparison with numeric type coercion.
// Handles float64/int/int64 mixing for JSON compatibility; falls back to
// deep equality for composite values.
func looseEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	return reflect.DeepEqual(a, b)
}

// compareNumeric performs three-way numeric comparison (-1/0/1).
// The second return is false when either side is not a number; ordered
// checks never match in that case.
func compareNumeric(a, b any) (int, bool) {
	na, nb, ok := asNumbers(a, b)
	if !ok {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	default:
		return 0, true
	}
}

// asNumbers attempts to convert both values to float64 for numeric comparison.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts value to float64 if it's a numeric type.
// Handles float64, float32, int, int32, int64 from JSON unmarshaling and
// test literals.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
