// internal/window/aggregate.go

// Package window reduces a bounded, time-indexed slice of events into one
// flat aggregate record, per a rule's grouping spec. Windows are computed
// per rule execution by a single point query against the event store, not
// by continuous incremental computation.
package window

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tripwirehq/tripwire/internal/types"
)

// EventStore is the bounded-read collaborator the engine queries.
// Implementations return every event of the type with createdAt in
// [start, end), ordered by creation time.
type EventStore interface {
	FindByTypeAndWindow(ctx context.Context, eventTypeID types.EventTypeID, start, end time.Time) ([]types.Event, error)
}

// fieldSpec is one compiled group entry: resultField -> {op: operand}.
type fieldSpec struct {
	result  string
	op      AggOp
	literal float64 // constant contribution when isRef is false
	ref     string  // payload field name when isRef is true
	isRef   bool
}

// ValidateGroup checks a raw grouping spec without running it. Used at
// rule creation so malformed specs fail fast, never at evaluation time.
func ValidateGroup(group map[string]any) error {
	_, err := compileGroup(group)
	return err
}

// compileGroup validates a raw grouping spec into its compiled form.
// Operands are either numeric literals (constant contribution per event,
// "_sum of 1" expresses count) or "_"-prefixed payload field references.
func compileGroup(group map[string]any) ([]fieldSpec, error) {
	results := make([]string, 0, len(group))
	for result := range group {
		results = append(results, result)
	}
	sort.Strings(results)

	specs := make([]fieldSpec, 0, len(results))
	for _, result := range results {
		if strings.HasPrefix(result, "_") {
			return nil, &types.ValidationError{Reason: fmt.Sprintf("group field '%s' cannot start with '_'", result)}
		}

		opMap, ok := group[result].(map[string]any)
		if !ok || len(opMap) != 1 {
			return nil, &types.ValidationError{Reason: fmt.Sprintf("group field '%s' requires exactly one aggregation operator", result)}
		}

		for opKey, operand := range opMap {
			op, err := parseAggOp(opKey)
			if err != nil {
				return nil, err
			}

			spec := fieldSpec{result: result, op: op}
			switch v := operand.(type) {
			case string:
				if !strings.HasPrefix(v, "_") {
					return nil, &types.ValidationError{Reason: fmt.Sprintf("operand of '%s' must be a number or a '_'-prefixed field reference", opKey)}
				}
				spec.ref = strings.TrimPrefix(v, "_")
				spec.isRef = true
			default:
				literal, numeric := toFloat64(operand)
				if !numeric {
					return nil, &types.ValidationError{Reason: fmt.Sprintf("operand of '%s' must be a number or a '_'-prefixed field reference", opKey)}
				}
				spec.literal = literal
			}
			specs = append(specs, spec)
		}
	}

	return specs, nil
}

// Engine computes window aggregates against the event store.
type Engine struct {
	events EventStore
}

// NewEngine creates a window aggregation engine.
func NewEngine(events EventStore) *Engine {
	return &Engine{events: events}
}

// Aggregate fetches every event of the type with createdAt in [start, end)
// and reduces the slice into one flat record with exactly the group keys.
//
// Contribution rules per result field:
//   - literal operand: every event contributes the literal value
//   - field reference: only events whose payload carries the field as a
//     number contribute; others are skipped entirely, not treated as zero
func (e *Engine) Aggregate(ctx context.Context, eventTypeID types.EventTypeID, group map[string]any, start, end time.Time) (map[string]any, error) {
	specs, err := compileGroup(group)
	if err != nil {
		return nil, err
	}

	events, err := e.events.FindByTypeAndWindow(ctx, eventTypeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("window read for event type %s: %w", eventTypeID, err)
	}

	accumulators := make([]accumulator, len(specs))
	for _, event := range events {
		for i, spec := range specs {
			if !spec.isRef {
				accumulators[i].add(spec.literal)
				continue
			}
			raw, present := event.Payload[spec.ref]
			if !present {
				continue
			}
			v, numeric := toFloat64(raw)
			if !numeric {
				continue
			}
			accumulators[i].add(v)
		}
	}

	record := make(map[string]any, len(specs))
	for i, spec := range specs {
		record[spec.result] = accumulators[i].finalize(spec.op)
	}
	return record, nil
}

// toFloat64 converts a JSON value to float64 if it is numeric.
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
