package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripwirehq/tripwire/internal/metrics"
	"github.com/tripwirehq/tripwire/internal/target"
	"github.com/tripwirehq/tripwire/internal/types"
	"github.com/tripwirehq/tripwire/internal/window"
)

// --- in-memory collaborators ---

type fakeRules struct {
	rules []types.Rule
}

func (f *fakeRules) FindByID(_ context.Context, id types.RuleID) (*types.Rule, error) {
	for i := range f.rules {
		if f.rules[i].ID == id {
			rule := f.rules[i]
			return &rule, nil
		}
	}
	return nil, types.NewNotFoundError("rule", string(id))
}

func (f *fakeRules) FindTriggeredByEventType(_ context.Context, eventTypeID types.EventTypeID) ([]types.Rule, error) {
	var out []types.Rule
	for _, r := range f.rules {
		if r.EventTypeID == eventTypeID && r.Type != types.RuleTypeTumbling {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeLog struct {
	mu         sync.Mutex
	executions []types.RuleExecution
}

func (f *fakeLog) Append(_ context.Context, execution *types.RuleExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, *execution)
	return nil
}

func (f *fakeLog) FindLatest(_ context.Context, ruleID types.RuleID) (*types.RuleExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.executions) - 1; i >= 0; i-- {
		if f.executions[i].RuleID == ruleID {
			execution := f.executions[i]
			return &execution, nil
		}
	}
	return nil, nil
}

func (f *fakeLog) byRule(ruleID types.RuleID) []types.RuleExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.RuleExecution
	for _, e := range f.executions {
		if e.RuleID == ruleID {
			out = append(out, e)
		}
	}
	return out
}

type fakeTargets struct {
	targets map[types.TargetID]*types.Target
}

func (f *fakeTargets) FindByID(_ context.Context, id types.TargetID) (*types.Target, error) {
	tgt, ok := f.targets[id]
	if !ok {
		return nil, types.NewNotFoundError("target", string(id))
	}
	return tgt, nil
}

type fakeEventTypes struct {
	eventTypes map[types.EventTypeID]*types.EventType
}

func (f *fakeEventTypes) FindByID(_ context.Context, id types.EventTypeID) (*types.EventType, error) {
	et, ok := f.eventTypes[id]
	if !ok {
		return nil, types.NewNotFoundError("event type", string(id))
	}
	return et, nil
}

type invocation struct {
	targetID types.TargetID
	ruleID   types.RuleID
	record   map[string]any
}

type fakeInvoker struct {
	mu          sync.Mutex
	result      target.Result
	invocations []invocation
}

func (f *fakeInvoker) Invoke(_ context.Context, tgt *types.Target, tctx target.Context) target.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations = append(f.invocations, invocation{
		targetID: tgt.ID,
		ruleID:   tctx.Rule.ID,
		record:   tctx.Event,
	})
	return f.result
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invocations)
}

// memoryEvents backs the real window engine in scheduled-trigger tests.
type memoryEvents struct {
	events []types.Event
}

func (m *memoryEvents) FindByTypeAndWindow(_ context.Context, eventTypeID types.EventTypeID, start, end time.Time) ([]types.Event, error) {
	var out []types.Event
	for _, e := range m.events {
		if e.EventTypeID == eventTypeID && !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeObserver struct {
	mu           sync.Mutex
	observations []metrics.Evaluation
}

func (f *fakeObserver) ObserveRuleEvaluation(e metrics.Evaluation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations = append(f.observations, e)
}

// --- fixtures ---

const (
	eventTypeID = types.EventTypeID("018f0000-0000-7000-8000-000000000001")
	targetID    = types.TargetID("018f0000-0000-7000-8000-000000000002")
)

type fixture struct {
	engine   *Engine
	rules    *fakeRules
	log      *fakeLog
	invoker  *fakeInvoker
	observer *fakeObserver
	events   *memoryEvents
	now      time.Time
}

func newFixture(t *testing.T, rules ...types.Rule) *fixture {
	t.Helper()

	f := &fixture{
		rules:    &fakeRules{rules: rules},
		log:      &fakeLog{},
		invoker:  &fakeInvoker{result: target.Result{StatusCode: 200, Success: true}},
		observer: &fakeObserver{},
		events:   &memoryEvents{},
		now:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	engine, err := NewEngine(Deps{
		Rules:      f.rules,
		Executions: f.log,
		Targets:    &fakeTargets{targets: map[types.TargetID]*types.Target{targetID: {ID: targetID, Name: "hook", URL: "http://example.test"}}},
		EventTypes: &fakeEventTypes{eventTypes: map[types.EventTypeID]*types.EventType{eventTypeID: {ID: eventTypeID, Name: "reading"}}},
		Aggregator: window.NewEngine(f.events),
		Invoker:    f.invoker,
		Observer:   f.observer,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

// ingest persists an event and runs the realtime/sliding trigger. The
// clock advances between persist and evaluation, as it does in production;
// the trailing window read is end-exclusive, so a frozen clock would place
// the triggering event outside its own window.
func (f *fixture) ingest(t *testing.T, payload types.Payload) {
	t.Helper()
	event := &types.Event{
		ID:          types.NewEventID(),
		EventTypeID: eventTypeID,
		Payload:     payload,
		CreatedAt:   f.now,
	}
	f.events.events = append(f.events.events, *event)
	f.now = f.now.Add(time.Second)
	require.NoError(t, f.engine.HandleEvent(context.Background(), event, "req-1"))
}

func realtimeRule(id string, filters map[string]any, skipConsecutive bool) types.Rule {
	return types.Rule{
		ID:                       types.RuleID(id),
		Name:                     "rule-" + id,
		EventTypeID:              eventTypeID,
		TargetID:                 targetID,
		Type:                     types.RuleTypeRealtime,
		Filters:                  filters,
		SkipOnConsecutiveMatches: skipConsecutive,
	}
}

// --- realtime trigger ---

func TestHandleEvent_MatchDispatchesAndRecords(t *testing.T) {
	f := newFixture(t, realtimeRule("r1", map[string]any{"value": map[string]any{"_gt": float64(1)}}, false))

	f.ingest(t, types.Payload{"value": float64(2)})

	assert.Equal(t, 1, f.invoker.count())
	executions := f.log.byRule("r1")
	require.Len(t, executions, 1)
	assert.True(t, executions[0].Match)
	assert.False(t, executions[0].Skip)
	assert.Equal(t, targetID, executions[0].TargetID)
	require.NotNil(t, executions[0].TargetSuccess)
	assert.True(t, *executions[0].TargetSuccess)
	require.NotNil(t, executions[0].TargetStatusCode)
	assert.Equal(t, 200, *executions[0].TargetStatusCode)
}

func TestHandleEvent_NonMatchStillRecords(t *testing.T) {
	f := newFixture(t, realtimeRule("r1", map[string]any{"value": map[string]any{"_gt": float64(10)}}, false))

	f.ingest(t, types.Payload{"value": float64(2)})

	assert.Equal(t, 0, f.invoker.count())
	executions := f.log.byRule("r1")
	require.Len(t, executions, 1)
	assert.False(t, executions[0].Match)
	assert.Nil(t, executions[0].TargetSuccess)
}

func TestHandleEvent_TwoRulesBothDispatch(t *testing.T) {
	filters := map[string]any{"value": map[string]any{"_gt": float64(1)}}
	f := newFixture(t,
		realtimeRule("r1", filters, false),
		realtimeRule("r2", filters, false),
	)

	f.ingest(t, types.Payload{"value": float64(2)})

	assert.Equal(t, 2, f.invoker.count())
	for _, id := range []types.RuleID{"r1", "r2"} {
		executions := f.log.byRule(id)
		require.Len(t, executions, 1, "rule %s", id)
		assert.True(t, executions[0].Match)
	}
}

// Edge-triggered suppression: for inputs [2,2,3,2,2] against filter
// {value: 2}, dispatches are [true,false,false,true,false].
func TestHandleEvent_EdgeTriggeredSuppression(t *testing.T) {
	f := newFixture(t, realtimeRule("r1", map[string]any{"value": float64(2)}, true))

	inputs := []float64{2, 2, 3, 2, 2}
	wantDispatch := []bool{true, false, false, true, false}

	for i, v := range inputs {
		before := f.invoker.count()
		f.ingest(t, types.Payload{"value": v})
		dispatched := f.invoker.count() > before
		assert.Equal(t, wantDispatch[i], dispatched, "input %d (value=%v)", i, v)
	}

	executions := f.log.byRule("r1")
	require.Len(t, executions, 5)
	wantMatch := []bool{true, true, false, true, true}
	wantSkip := []bool{false, true, false, false, true}
	for i := range executions {
		assert.Equal(t, wantMatch[i], executions[i].Match, "execution %d match", i)
		assert.Equal(t, wantSkip[i], executions[i].Skip, "execution %d skip", i)
	}
}

func TestHandleEvent_SuppressionDisabledDispatchesEveryMatch(t *testing.T) {
	f := newFixture(t, realtimeRule("r1", map[string]any{"value": float64(2)}, false))

	for i := 0; i < 3; i++ {
		f.ingest(t, types.Payload{"value": float64(2)})
	}
	assert.Equal(t, 3, f.invoker.count())
}

func TestHandleEvent_TargetFailureRecordedNotPropagated(t *testing.T) {
	f := newFixture(t, realtimeRule("r1", map[string]any{"value": float64(2)}, false))
	f.invoker.result = target.Result{StatusCode: 502, Success: false}

	f.ingest(t, types.Payload{"value": float64(2)})

	executions := f.log.byRule("r1")
	require.Len(t, executions, 1)
	assert.True(t, executions[0].Match)
	require.NotNil(t, executions[0].TargetSuccess)
	assert.False(t, *executions[0].TargetSuccess)
	assert.Equal(t, 502, *executions[0].TargetStatusCode)
}

func TestHandleEvent_SlidingRuleEvaluatesAggregate(t *testing.T) {
	window := types.WindowSize{Unit: types.WindowUnitMinute, Value: 5}
	rule := types.Rule{
		ID:          "r1",
		Name:        "avg-too-high",
		EventTypeID: eventTypeID,
		TargetID:    targetID,
		Type:        types.RuleTypeSliding,
		Filters:     map[string]any{"average": map[string]any{"_gt": float64(10)}},
		Group: map[string]any{
			"average": map[string]any{"_avg": "_value"},
			"count":   map[string]any{"_sum": float64(1)},
		},
		WindowSize: &window,
	}
	f := newFixture(t, rule)

	// Two prior events inside the trailing window.
	for _, v := range []float64{10, 20} {
		f.events.events = append(f.events.events, types.Event{
			ID:          types.NewEventID(),
			EventTypeID: eventTypeID,
			Payload:     types.Payload{"value": v},
			CreatedAt:   f.now.Add(-time.Minute),
		})
	}

	f.ingest(t, types.Payload{"value": float64(30)})

	require.Equal(t, 1, f.invoker.count())
	record := f.invoker.invocations[0].record
	assert.Equal(t, float64(20), record["average"])
	assert.Equal(t, float64(3), record["count"])
}

func TestHandleEvent_ObservationEmitted(t *testing.T) {
	f := newFixture(t, realtimeRule("r1", map[string]any{"value": float64(2)}, false))

	f.ingest(t, types.Payload{"value": float64(2)})

	require.Len(t, f.observer.observations, 1)
	obs := f.observer.observations[0]
	assert.Equal(t, string(eventTypeID), obs.EventTypeID)
	assert.Equal(t, "r1", obs.RuleID)
	assert.Equal(t, "realtime", obs.RuleType)
	assert.True(t, obs.Match)
	assert.False(t, obs.Skip)
	require.NotNil(t, obs.TargetSuccess)
	assert.True(t, *obs.TargetSuccess)
}

// --- scheduled trigger ---

func tumblingRule(id string, filters map[string]any) types.Rule {
	window := types.WindowSize{Unit: types.WindowUnitMinute, Value: 10}
	return types.Rule{
		ID:          types.RuleID(id),
		Name:        "rule-" + id,
		EventTypeID: eventTypeID,
		TargetID:    targetID,
		Type:        types.RuleTypeTumbling,
		Filters:     filters,
		Group: map[string]any{
			"count": map[string]any{"_sum": float64(1)},
		},
		WindowSize: &window,
	}
}

func TestExecuteScheduled_RuleNotFound(t *testing.T) {
	f := newFixture(t)

	err := f.engine.ExecuteScheduled(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestExecuteScheduled_NonTumblingRejected(t *testing.T) {
	f := newFixture(t, realtimeRule("r1", nil, false))

	err := f.engine.ExecuteScheduled(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t,
		"Cannot execute rule of type 'realtime'. Only rule of type tumbling are supported.",
		err.Error())
	assert.IsType(t, &types.InvalidOperationError{}, err)
}

func TestExecuteScheduled_DispatchesOnMatch(t *testing.T) {
	f := newFixture(t, tumblingRule("r1", map[string]any{"count": map[string]any{"_gte": float64(2)}}))

	for i := 0; i < 3; i++ {
		f.events.events = append(f.events.events, types.Event{
			ID:          types.NewEventID(),
			EventTypeID: eventTypeID,
			Payload:     types.Payload{},
			CreatedAt:   f.now.Add(-time.Minute),
		})
	}

	require.NoError(t, f.engine.ExecuteScheduled(context.Background(), "r1"))

	assert.Equal(t, 1, f.invoker.count())
	executions := f.log.byRule("r1")
	require.Len(t, executions, 1)
	assert.True(t, executions[0].Match)
	assert.False(t, executions[0].Skip)
}

func TestExecuteScheduled_AbsentFilterAlwaysMatches(t *testing.T) {
	f := newFixture(t, tumblingRule("r1", nil))

	require.NoError(t, f.engine.ExecuteScheduled(context.Background(), "r1"))

	// Empty window, no filter: still a match and a dispatch.
	assert.Equal(t, 1, f.invoker.count())
	record := f.invoker.invocations[0].record
	assert.Equal(t, float64(0), record["count"])
}

// Consecutive matching ticks both dispatch: tumbling windows are
// independent occasions, suppression never applies.
func TestExecuteScheduled_NoSuppressionAcrossTicks(t *testing.T) {
	f := newFixture(t, tumblingRule("r1", nil))

	require.NoError(t, f.engine.ExecuteScheduled(context.Background(), "r1"))
	f.now = f.now.Add(10 * time.Minute)
	require.NoError(t, f.engine.ExecuteScheduled(context.Background(), "r1"))

	assert.Equal(t, 2, f.invoker.count())
}

// The second tick's window starts at the first tick's executedAt, not one
// window size back.
func TestExecuteScheduled_WindowStartsAtPreviousTick(t *testing.T) {
	f := newFixture(t, tumblingRule("r1", nil))

	require.NoError(t, f.engine.ExecuteScheduled(context.Background(), "r1"))
	firstTick := f.now

	// One event after the first tick, one long before it.
	f.events.events = append(f.events.events,
		types.Event{ID: types.NewEventID(), EventTypeID: eventTypeID, Payload: types.Payload{}, CreatedAt: firstTick.Add(time.Minute)},
		types.Event{ID: types.NewEventID(), EventTypeID: eventTypeID, Payload: types.Payload{}, CreatedAt: firstTick.Add(-time.Hour)},
	)

	f.now = f.now.Add(10 * time.Minute)
	require.NoError(t, f.engine.ExecuteScheduled(context.Background(), "r1"))

	require.Equal(t, 2, f.invoker.count())
	record := f.invoker.invocations[1].record
	assert.Equal(t, float64(1), record["count"])
}

func TestHandleEvent_TumblingRulesIgnoredOnIngestion(t *testing.T) {
	f := newFixture(t, tumblingRule("r1", nil))

	f.ingest(t, types.Payload{"value": float64(1)})

	assert.Equal(t, 0, f.invoker.count())
	assert.Empty(t, f.log.byRule("r1"))
}
