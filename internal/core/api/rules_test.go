package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripwirehq/tripwire/internal/types"
)

func TestCreateRealtimeRule(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	var created types.Rule
	resp := a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "over-threshold",
		"eventTypeId": string(et.ID),
		"targetId":    string(tgt.ID),
		"type":        "realtime",
		"filters":     map[string]any{"temperature": map[string]any{"_gt": 30}},
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.JobID)
	assert.Empty(t, a.scheduler.scheduled)
}

func TestCreateRuleDuplicateNameConflicts(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	body := map[string]any{
		"name":        "over-threshold",
		"eventTypeId": string(et.ID),
		"targetId":    string(tgt.ID),
		"type":        "realtime",
		"filters":     map[string]any{"temperature": map[string]any{"_gt": 30}},
	}
	resp := a.do(t, http.MethodPost, "/api/v1/rules", body, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/v1/rules", body, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateRuleRejectsMalformedFilter(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	resp := a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "bad-filter",
		"eventTypeId": string(et.ID),
		"targetId":    string(tgt.ID),
		"type":        "realtime",
		"filters":     map[string]any{"temperature": map[string]any{"_between": 30}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRuleRejectsMalformedGroup(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	resp := a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "bad-group",
		"eventTypeId": string(et.ID),
		"targetId":    string(tgt.ID),
		"type":        "sliding",
		"group":       map[string]any{"avg": map[string]any{"_median": "_temperature"}},
		"windowSize":  map[string]any{"unit": "minute", "value": 5},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRuleUnknownReferences(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	resp := a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "ghost-type",
		"eventTypeId": string(types.NewEventTypeID()),
		"targetId":    string(tgt.ID),
		"type":        "realtime",
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "ghost-target",
		"eventTypeId": string(et.ID),
		"targetId":    string(types.NewTargetID()),
		"type":        "realtime",
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateTumblingRuleSchedulesJob(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	var created types.Rule
	resp := a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "hourly-average",
		"eventTypeId": string(et.ID),
		"targetId":    string(tgt.ID),
		"type":        "tumbling",
		"group":       map[string]any{"avgTemperature": map[string]any{"_avg": "_temperature"}},
		"windowSize":  map[string]any{"unit": "hour", "value": 1},
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"1 hour"}, a.scheduler.scheduled)
	assert.NotEmpty(t, created.JobID)
}

func TestUpdateRuleCadenceReschedules(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	var created types.Rule
	resp := a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "hourly-average",
		"eventTypeId": string(et.ID),
		"targetId":    string(tgt.ID),
		"type":        "tumbling",
		"group":       map[string]any{"avgTemperature": map[string]any{"_avg": "_temperature"}},
		"windowSize":  map[string]any{"unit": "second", "value": 1},
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var updated types.Rule
	resp = a.do(t, http.MethodPut, "/api/v1/rules/"+string(created.ID), map[string]any{
		"name":        "ten-hourly-average",
		"eventTypeId": string(et.ID),
		"targetId":    string(tgt.ID),
		"type":        "tumbling",
		"group":       map[string]any{"avgTemperature": map[string]any{"_avg": "_temperature"}},
		"windowSize":  map[string]any{"unit": "hour", "value": 10},
	}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"1 second", "10 hours"}, a.scheduler.scheduled)
	assert.Equal(t, []string{created.JobID}, a.scheduler.cancelled)
	assert.NotEqual(t, created.JobID, updated.JobID)
}

func TestDeleteTumblingRuleCancelsJob(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	var created types.Rule
	resp := a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "hourly-average",
		"eventTypeId": string(et.ID),
		"targetId":    string(tgt.ID),
		"type":        "tumbling",
		"group":       map[string]any{"count": map[string]any{"_sum": 1}},
		"windowSize":  map[string]any{"unit": "hour", "value": 1},
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = a.do(t, http.MethodDelete, "/api/v1/rules/"+string(created.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{created.JobID}, a.scheduler.cancelled)

	resp = a.do(t, http.MethodGet, "/api/v1/rules/"+string(created.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuleValidationRejectsTumblingSuppression(t *testing.T) {
	a := newTestAPI(t)

	et := a.createEventType(t, "temperature-measured")
	tgt := a.createTarget(t, "https://hooks.example.com/ops")

	resp := a.do(t, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":                      "bad",
		"eventTypeId":               string(et.ID),
		"targetId":                  string(tgt.ID),
		"type":                      "tumbling",
		"skipOnConsecutivesMatches": true,
		"group":                     map[string]any{"count": map[string]any{"_sum": 1}},
		"windowSize":                map[string]any{"unit": "hour", "value": 1},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
