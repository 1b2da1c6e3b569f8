package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/tripwirehq/tripwire/internal/core/db"
	"github.com/tripwirehq/tripwire/internal/types"
)

// newTestStores opens an in-memory SQLite database, runs the embedded
// migrations, and returns the store bundle.
func newTestStores(t *testing.T) *Stores {
	t.Helper()

	conn, err := sqlx.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Each new connection to :memory: is a fresh database; keep the pool
	// at one connection so every query sees the migrated schema.
	conn.SetMaxOpenConns(1)

	require.NoError(t, db.MigrateUp(conn))

	queries, err := db.LoadQueries(conn)
	require.NoError(t, err)

	return New(queries)
}

// seedEventType inserts an event type and returns it.
func seedEventType(t *testing.T, s *Stores, name string) *types.EventType {
	t.Helper()
	et := &types.EventType{
		ID:        types.NewEventTypeID(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.EventTypes.Insert(context.Background(), et))
	return et
}

// seedTarget inserts a target and returns it.
func seedTarget(t *testing.T, s *Stores) *types.Target {
	t.Helper()
	target := &types.Target{
		ID:        types.NewTargetID(),
		Name:      "ops-hook",
		URL:       "https://hooks.example.com/ops",
		Headers:   map[string]string{"Authorization": "Bearer {{rule.name}}"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Targets.Insert(context.Background(), target))
	return target
}

// seedRule inserts a realtime rule bound to the given type and target.
func seedRule(t *testing.T, s *Stores, et *types.EventType, target *types.Target) *types.Rule {
	t.Helper()
	rule := &types.Rule{
		ID:          types.NewRuleID(),
		Name:        "over-threshold-" + et.Name,
		EventTypeID: et.ID,
		TargetID:    target.ID,
		Type:        types.RuleTypeRealtime,
		Filters:     map[string]any{"temperature": map[string]any{"_gt": 30.0}},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, s.Rules.Insert(context.Background(), rule))
	return rule
}
