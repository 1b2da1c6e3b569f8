package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tripwirehq/tripwire/internal/predicate"
	"github.com/tripwirehq/tripwire/internal/types"
	"github.com/tripwirehq/tripwire/internal/window"
)

type ruleRequest struct {
	Name                     string            `json:"name"`
	EventTypeID              string            `json:"eventTypeId"`
	TargetID                 string            `json:"targetId"`
	Type                     types.RuleType    `json:"type"`
	Filters                  map[string]any    `json:"filters,omitempty"`
	SkipOnConsecutiveMatches bool              `json:"skipOnConsecutivesMatches"`
	Group                    map[string]any    `json:"group,omitempty"`
	WindowSize               *types.WindowSize `json:"windowSize,omitempty"`
}

// decodeRule validates a rule request and resolves its references. All
// spec compilation happens here so malformed filters and groups fail at
// authoring time, never during evaluation.
func (s *Service) decodeRule(r *http.Request, req *ruleRequest) (*types.Rule, error) {
	eventTypeID, err := types.ParseEventTypeID(req.EventTypeID)
	if err != nil {
		return nil, &types.ValidationError{Reason: "eventTypeId must be a valid UUID"}
	}
	targetID, err := types.ParseTargetID(req.TargetID)
	if err != nil {
		return nil, &types.ValidationError{Reason: "targetId must be a valid UUID"}
	}

	rule := &types.Rule{
		Name:                     req.Name,
		EventTypeID:              eventTypeID,
		TargetID:                 targetID,
		Type:                     req.Type,
		Filters:                  req.Filters,
		SkipOnConsecutiveMatches: req.SkipOnConsecutiveMatches,
		Group:                    req.Group,
		WindowSize:               req.WindowSize,
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if _, err := predicate.Compile(rule.Filters); err != nil {
		return nil, err
	}
	if rule.IsWindowed() {
		if err := window.ValidateGroup(rule.Group); err != nil {
			return nil, err
		}
	}

	// Referenced entities must exist before the rule is persisted.
	if _, err := s.stores.EventTypes.FindByID(r.Context(), eventTypeID); err != nil {
		return nil, err
	}
	if _, err := s.stores.Targets.FindByID(r.Context(), targetID); err != nil {
		return nil, err
	}

	return rule, nil
}

// handleCreateRule registers a new rule. Tumbling rules get their
// recurring job scheduled atomically with the insert.
func (s *Service) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}

	rule, err := s.decodeRule(r, &req)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	rule.ID = types.NewRuleID()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	if err := s.coordinator.CreateRule(r.Context(), rule); err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

// handleUpdateRule replaces a rule definition. The schedule coordinator
// reconciles the recurring job when the window cadence changes.
func (s *Service) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a valid UUID")
		return
	}

	existing, err := s.stores.Rules.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}

	rule, err := s.decodeRule(r, &req)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	if err := s.coordinator.UpdateRule(r.Context(), rule); err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleListRules returns all rules.
func (s *Service) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.stores.Rules.List(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleGetRule returns one rule by ID.
func (s *Service) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a valid UUID")
		return
	}

	rule, err := s.stores.Rules.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes a rule and, for tumbling rules, cancels its
// recurring job first.
func (s *Service) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a valid UUID")
		return
	}

	if err := s.coordinator.DeleteRule(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListRuleExecutions returns a rule's execution history, newest
// first. The optional limit query parameter caps the page size.
func (s *Service) handleListRuleExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a valid UUID")
		return
	}

	if _, err := s.stores.Rules.FindByID(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
	}

	executions, err := s.stores.Executions.ListByRule(r.Context(), id, limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, executions)
}
