package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripwirehq/tripwire/internal/types"
)

func TestFindLatestWithoutHistoryIsNil(t *testing.T) {
	s := newTestStores(t)

	latest, err := s.Executions.FindLatest(context.Background(), types.NewRuleID())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestFindLatestReturnsNewestExecution(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	et := seedEventType(t, s, "temperature-measured")
	target := seedTarget(t, s)
	rule := seedRule(t, s, et, target)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	success := true
	status := 200
	for i, matched := range []bool{true, false, true} {
		execution := &types.RuleExecution{
			ID:          types.NewExecutionID(),
			RuleID:      rule.ID,
			EventTypeID: et.ID,
			ExecutedAt:  base.Add(time.Duration(i) * time.Second),
			Match:       matched,
		}
		if i == 2 {
			execution.TargetID = target.ID
			execution.TargetSuccess = &success
			execution.TargetStatusCode = &status
		}
		require.NoError(t, s.Executions.Append(ctx, execution))
	}

	latest, err := s.Executions.FindLatest(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Match)
	assert.Equal(t, target.ID, latest.TargetID)
	require.NotNil(t, latest.TargetSuccess)
	assert.True(t, *latest.TargetSuccess)
	require.NotNil(t, latest.TargetStatusCode)
	assert.Equal(t, 200, *latest.TargetStatusCode)
}

func TestListByRuleNewestFirstWithLimit(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	et := seedEventType(t, s, "temperature-measured")
	target := seedTarget(t, s)
	rule := seedRule(t, s, et, target)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Executions.Append(ctx, &types.RuleExecution{
			ID:          types.NewExecutionID(),
			RuleID:      rule.ID,
			EventTypeID: et.ID,
			ExecutedAt:  base.Add(time.Duration(i) * time.Second),
			Match:       i%2 == 0,
		}))
	}

	executions, err := s.Executions.ListByRule(ctx, rule.ID, 3)
	require.NoError(t, err)
	require.Len(t, executions, 3)

	// Newest first.
	assert.True(t, executions[0].ExecutedAt.After(executions[1].ExecutedAt))
	assert.True(t, executions[1].ExecutedAt.After(executions[2].ExecutedAt))
}

func TestExecutionsWithoutTargetStoreNulls(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	et := seedEventType(t, s, "temperature-measured")
	target := seedTarget(t, s)
	rule := seedRule(t, s, et, target)

	require.NoError(t, s.Executions.Append(ctx, &types.RuleExecution{
		ID:          types.NewExecutionID(),
		RuleID:      rule.ID,
		EventTypeID: et.ID,
		ExecutedAt:  time.Now(),
		Match:       false,
	}))

	latest, err := s.Executions.FindLatest(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Empty(t, latest.TargetID)
	assert.Nil(t, latest.TargetSuccess)
	assert.Nil(t, latest.TargetStatusCode)
}
