// internal/predicate/compile.go
package predicate

import (
	"sort"
	"strings"

	"github.com/tripwirehq/tripwire/internal/types"
)

/*
 * Predicate compilation and validation.
 *
 * Compiles a raw filter spec (JSON object tree) into a Predicate with a
 * validated node tree ready for evaluation.
 *
 * Compilation workflow:
 *   1. Walk the spec recursively: _and/_or combinators and field clauses
 *   2. Validate field names (no '.' or '$')
 *   3. Resolve operator keys against the closed Op enum
 *   4. Validate operands (_gt/_gte/_lt/_lte numeric, _near via geo.go)
 *
 * Why compile-time validation: every constructed Predicate is valid, so
 * evaluation never re-validates the spec. Match can still fail at runtime
 * when an operator receives data of the wrong shape (_near against a
 * non-location value); that is a PredicateMatchError, not a PredicateError,
 * because it depends on the event, not the spec.
 *
 * Why sorted keys: JSON objects are unordered and Go map iteration is
 * randomized. Sorting clause keys makes both compile errors and evaluation
 * order deterministic across identical inputs.
 */

// Op is the closed enum of filter operators.
type Op int

// Filter operators.
const (
	OpEq Op = iota
	OpGt
	OpGte
	OpLt
	OpLte
	OpNear
)

// opNames maps wire operator keys to enum values. The zero value of Op is
// OpEq, so lookups must check membership, never rely on the zero value.
var opNames = map[string]Op{
	"_eq":   OpEq,
	"_gt":   OpGt,
	"_gte":  OpGte,
	"_lt":   OpLt,
	"_lte":  OpLte,
	"_near": OpNear,
}

// String returns the wire key of the operator.
func (o Op) String() string {
	switch o {
	case OpEq:
		return "_eq"
	case OpGt:
		return "_gt"
	case OpGte:
		return "_gte"
	case OpLt:
		return "_lt"
	case OpLte:
		return "_lte"
	case OpNear:
		return "_near"
	default:
		return "_unknown"
	}
}

// Predicate is the compiled, validated form of a filter specification.
// A nil spec compiles to a Predicate that matches everything.
type Predicate struct {
	root node
}

// node is one evaluator in the compiled tree.
type node interface {
	match(record map[string]any) (bool, error)
}

// andNode matches when all children match (vacuously true when empty).
type andNode struct {
	children []node
}

// orNode matches when at least one child matches (vacuously false when empty).
type orNode struct {
	children []node
}

// leafNode matches a single record field against one or more operator
// checks. All checks must hold (conjunction).
type leafNode struct {
	field  string
	checks []opCheck
}

// opCheck is a single compiled operator application.
type opCheck struct {
	op      Op
	operand any
	near    *nearOperand // non-nil iff op == OpNear
}

// Compile validates a filter spec and returns its compiled form.
// A nil spec is valid and matches everything.
func Compile(spec map[string]any) (*Predicate, error) {
	if spec == nil {
		return &Predicate{}, nil
	}
	root, err := compileObject(spec)
	if err != nil {
		return nil, err
	}
	return &Predicate{root: root}, nil
}

// compileObject compiles one spec object into an AND over its clauses.
// Keys are either combinators (_and/_or, case-insensitive) or field names.
func compileObject(spec map[string]any) (node, error) {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]node, 0, len(keys))
	for _, key := range keys {
		value := spec[key]

		switch strings.ToLower(key) {
		case "_and":
			children, err := compileSubSpecs(key, value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, &andNode{children: children})
		case "_or":
			children, err := compileSubSpecs(key, value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, &orNode{children: children})
		default:
			leaf, err := compileField(key, value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, leaf)
		}
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return &andNode{children: clauses}, nil
}

// compileSubSpecs compiles the ordered sub-spec array of a combinator.
func compileSubSpecs(key string, value any) ([]node, error) {
	arr, ok := value.([]any)
	if !ok {
		return nil, types.NewPredicateError("%s must be an array of filters", key)
	}
	children := make([]node, 0, len(arr))
	for _, sub := range arr {
		subSpec, ok := sub.(map[string]any)
		if !ok {
			return nil, types.NewPredicateError("%s must be an array of filters", key)
		}
		child, err := compileObject(subSpec)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// compileField compiles one field clause. The value is either a literal
// (implicit _eq) or an operator map whose checks all apply to the field.
func compileField(field string, value any) (*leafNode, error) {
	for _, sym := range []string{".", "$"} {
		if strings.Contains(field, sym) {
			return nil, types.NewPredicateError("field '%s' cannot contain '%s'", field, sym)
		}
	}

	opMap, ok := value.(map[string]any)
	if !ok {
		// Literal value: implicit equality.
		return &leafNode{field: field, checks: []opCheck{{op: OpEq, operand: value}}}, nil
	}

	opKeys := make([]string, 0, len(opMap))
	for k := range opMap {
		opKeys = append(opKeys, k)
	}
	sort.Strings(opKeys)

	checks := make([]opCheck, 0, len(opKeys))
	for _, opKey := range opKeys {
		op, known := opNames[opKey]
		if !known {
			return nil, types.NewPredicateError("'%s' is not a valid filter operator", opKey)
		}
		operand := opMap[opKey]

		check := opCheck{op: op, operand: operand}
		switch op {
		case OpGt, OpGte, OpLt, OpLte:
			if _, numeric := toFloat64(operand); !numeric {
				return nil, types.NewPredicateError("'%s' requires a numeric value", opKey)
			}
		case OpNear:
			near, err := compileNear(operand)
			if err != nil {
				return nil, err
			}
			check.near = near
		}
		checks = append(checks, check)
	}

	return &leafNode{field: field, checks: checks}, nil
}
