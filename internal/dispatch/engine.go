// Package dispatch orchestrates rule evaluation and target invocation.
//
// Two distinct triggers drive the engine: event ingestion (realtime and
// sliding rules, fanned out concurrently per event) and scheduler ticks
// (tumbling rules, one tick per window cadence). Per-rule suppression
// state is derived from the append-only execution log rather than
// in-process memory, so concurrent evaluations and service restarts stay
// consistent.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tripwirehq/tripwire/internal/metrics"
	"github.com/tripwirehq/tripwire/internal/predicate"
	"github.com/tripwirehq/tripwire/internal/target"
	"github.com/tripwirehq/tripwire/internal/types"
)

// RuleSource resolves rules for both triggers.
type RuleSource interface {
	// FindByID returns NotFoundError when the rule is absent.
	FindByID(ctx context.Context, id types.RuleID) (*types.Rule, error)

	// FindTriggeredByEventType returns the realtime and sliding rules
	// bound to the event type.
	FindTriggeredByEventType(ctx context.Context, eventTypeID types.EventTypeID) ([]types.Rule, error)
}

// ExecutionLog is the append-only audit trail. The latest record per rule
// doubles as consecutive-match suppression state.
type ExecutionLog interface {
	Append(ctx context.Context, execution *types.RuleExecution) error

	// FindLatest returns (nil, nil) when the rule has no history.
	FindLatest(ctx context.Context, ruleID types.RuleID) (*types.RuleExecution, error)
}

// TargetSource resolves webhook targets.
type TargetSource interface {
	FindByID(ctx context.Context, id types.TargetID) (*types.Target, error)
}

// EventTypeSource resolves event types for the dispatch context.
type EventTypeSource interface {
	FindByID(ctx context.Context, id types.EventTypeID) (*types.EventType, error)
}

// Aggregator computes window aggregates (internal/window.Engine).
type Aggregator interface {
	Aggregate(ctx context.Context, eventTypeID types.EventTypeID, group map[string]any, start, end time.Time) (map[string]any, error)
}

// Invoker performs the webhook round trip (internal/target.Invoker).
type Invoker interface {
	Invoke(ctx context.Context, tgt *types.Target, tctx target.Context) target.Result
}

// Observer receives one duration observation per rule evaluation.
type Observer interface {
	ObserveRuleEvaluation(e metrics.Evaluation)
}

// Deps are the engine's collaborators. All are required except Observer.
type Deps struct {
	Rules      RuleSource
	Executions ExecutionLog
	Targets    TargetSource
	EventTypes EventTypeSource
	Aggregator Aggregator
	Invoker    Invoker
	Observer   Observer
	Logger     zerolog.Logger

	// Now is the clock, defaulting to time.Now. Injected for tests.
	Now func() time.Time
}

// Engine evaluates and dispatches rules.
type Engine struct {
	deps Deps
	log  zerolog.Logger
}

// NewEngine creates a dispatch engine.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Rules == nil || deps.Executions == nil || deps.Targets == nil ||
		deps.EventTypes == nil || deps.Aggregator == nil || deps.Invoker == nil {
		return nil, fmt.Errorf("dispatch: missing collaborator")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		deps: deps,
		log:  deps.Logger.With().Str("component", "dispatch").Logger(),
	}, nil
}

// HandleEvent runs the realtime/sliding trigger for one ingested event.
// All bound rules are evaluated concurrently; the call returns once every
// dispatch has completed and its execution record is appended. A failing
// target never fails ingestion; per-rule evaluation errors are logged and
// recorded, not propagated.
func (e *Engine) HandleEvent(ctx context.Context, event *types.Event, requestID string) error {
	rules, err := e.deps.Rules.FindTriggeredByEventType(ctx, event.EventTypeID)
	if err != nil {
		return fmt.Errorf("resolve rules for event type %s: %w", event.EventTypeID, err)
	}

	var wg sync.WaitGroup
	for i := range rules {
		rule := rules[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.evaluate(ctx, &rule, event, requestID); err != nil {
				e.log.Error().Err(err).
					Str("rule_id", string(rule.ID)).
					Str("event_id", string(event.ID)).
					Msg("rule evaluation failed")
			}
		}()
	}
	wg.Wait()
	return nil
}

// ExecuteScheduled runs the tumbling trigger for one scheduler tick.
// The window spans from the previous tick (latest execution) to now, or
// one window size back when the rule has no history. Tumbling rules never
// suppress consecutive matches: each tick is an independent window.
func (e *Engine) ExecuteScheduled(ctx context.Context, ruleID types.RuleID) error {
	rule, err := e.deps.Rules.FindByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule.Type != types.RuleTypeTumbling {
		return types.NewInvalidOperationError(
			"Cannot execute rule of type '%s'. Only rule of type tumbling are supported.", rule.Type)
	}

	now := e.deps.Now()
	start := now.Add(-rule.WindowSize.Duration())
	previous, err := e.deps.Executions.FindLatest(ctx, rule.ID)
	if err != nil {
		return fmt.Errorf("resolve latest execution for rule %s: %w", rule.ID, err)
	}
	if previous != nil {
		start = previous.ExecutedAt
	}

	started := now
	record, err := e.deps.Aggregator.Aggregate(ctx, rule.EventTypeID, rule.Group, start, now)
	if err != nil {
		return err
	}

	matched, err := e.matchFilters(rule, record)
	if err != nil {
		e.log.Error().Err(err).Str("rule_id", string(rule.ID)).Msg("scheduled predicate match failed")
		matched = false
	}

	execution := &types.RuleExecution{
		ID:          types.NewExecutionID(),
		RuleID:      rule.ID,
		EventTypeID: rule.EventTypeID,
		ExecutedAt:  now,
		Match:       matched,
	}

	if matched {
		e.dispatch(ctx, rule, record, "", execution)
	}

	if err := e.deps.Executions.Append(ctx, execution); err != nil {
		return fmt.Errorf("append execution for rule %s: %w", rule.ID, err)
	}

	e.observe(rule, execution, e.deps.Now().Sub(started))
	return nil
}

// evaluate runs one rule against one ingested event: build the evaluation
// record, match, decide suppression, dispatch, and append exactly one
// execution record.
func (e *Engine) evaluate(ctx context.Context, rule *types.Rule, event *types.Event, requestID string) error {
	started := e.deps.Now()

	record, err := e.evaluationRecord(ctx, rule, event)
	if err != nil {
		return err
	}

	matched, err := e.matchFilters(rule, record)
	if err != nil {
		// Data-shape errors surface per evaluation; the occasion is still
		// recorded as a non-match so the audit trail stays gapless.
		e.log.Warn().Err(err).Str("rule_id", string(rule.ID)).Msg("predicate match failed")
		matched = false
	}

	previousMatched := false
	if rule.SkipOnConsecutiveMatches {
		previous, err := e.deps.Executions.FindLatest(ctx, rule.ID)
		if err != nil {
			return fmt.Errorf("resolve latest execution for rule %s: %w", rule.ID, err)
		}
		previousMatched = previous != nil && previous.Match
	}

	// Edge-triggered suppression: only the first event of a contiguous
	// run of matches dispatches.
	skip := rule.SkipOnConsecutiveMatches && matched && previousMatched

	execution := &types.RuleExecution{
		ID:          types.NewExecutionID(),
		RuleID:      rule.ID,
		EventTypeID: rule.EventTypeID,
		ExecutedAt:  e.deps.Now(),
		Match:       matched,
		Skip:        skip,
	}

	if matched && !skip {
		e.dispatch(ctx, rule, record, requestID, execution)
	}

	if err := e.deps.Executions.Append(ctx, execution); err != nil {
		return fmt.Errorf("append execution for rule %s: %w", rule.ID, err)
	}

	e.observe(rule, execution, e.deps.Now().Sub(started))
	return nil
}

// evaluationRecord builds the record the rule's predicate evaluates:
// the raw payload for realtime rules, a trailing-window aggregate for
// sliding rules.
func (e *Engine) evaluationRecord(ctx context.Context, rule *types.Rule, event *types.Event) (map[string]any, error) {
	if rule.Type == types.RuleTypeRealtime {
		return event.Payload, nil
	}

	now := e.deps.Now()
	return e.deps.Aggregator.Aggregate(ctx, rule.EventTypeID, rule.Group, now.Add(-rule.WindowSize.Duration()), now)
}

// matchFilters compiles and evaluates the rule's predicate. Stored specs
// were validated at rule creation, so compilation failures here indicate
// corruption and are surfaced, not swallowed.
func (e *Engine) matchFilters(rule *types.Rule, record map[string]any) (bool, error) {
	compiled, err := predicate.Compile(rule.Filters)
	if err != nil {
		return false, fmt.Errorf("stored filter for rule %s no longer compiles: %w", rule.ID, err)
	}
	return compiled.Match(record)
}

// dispatch resolves the target and invokes it, folding the observed
// outcome into the execution record. Resolution and invocation failures
// are recorded, never propagated.
func (e *Engine) dispatch(ctx context.Context, rule *types.Rule, record map[string]any, requestID string, execution *types.RuleExecution) {
	execution.TargetID = rule.TargetID

	failed := false
	tgt, err := e.deps.Targets.FindByID(ctx, rule.TargetID)
	if err != nil {
		e.log.Error().Err(err).Str("rule_id", string(rule.ID)).Msg("target resolution failed")
		execution.TargetSuccess = &failed
		return
	}
	eventType, err := e.deps.EventTypes.FindByID(ctx, rule.EventTypeID)
	if err != nil {
		e.log.Error().Err(err).Str("rule_id", string(rule.ID)).Msg("event type resolution failed")
		execution.TargetSuccess = &failed
		return
	}

	result := e.deps.Invoker.Invoke(ctx, tgt, target.Context{
		Event:     record,
		EventType: eventType,
		Rule:      rule,
		RequestID: requestID,
	})

	execution.TargetSuccess = &result.Success
	execution.TargetStatusCode = &result.StatusCode

	e.log.Debug().
		Str("rule_id", string(rule.ID)).
		Str("target_id", string(tgt.ID)).
		Bool("success", result.Success).
		Int("status_code", result.StatusCode).
		Msg("target invoked")
}

// observe emits the fire-and-forget duration observation.
func (e *Engine) observe(rule *types.Rule, execution *types.RuleExecution, duration time.Duration) {
	if e.deps.Observer == nil {
		return
	}
	e.deps.Observer.ObserveRuleEvaluation(metrics.Evaluation{
		EventTypeID:   string(rule.EventTypeID),
		RuleID:        string(rule.ID),
		RuleType:      string(rule.Type),
		Match:         execution.Match,
		Skip:          execution.Skip,
		TargetID:      string(execution.TargetID),
		TargetSuccess: execution.TargetSuccess,
		Duration:      duration,
	})
}
