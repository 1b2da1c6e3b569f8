package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tripwirehq/tripwire/internal/types"
)

type createEventTypeRequest struct {
	Name string `json:"name"`
}

// handleCreateEventType registers a new event type. Names are unique;
// re-registering an existing name conflicts.
func (s *Service) handleCreateEventType(w http.ResponseWriter, r *http.Request) {
	var req createEventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	if existing, err := s.stores.EventTypes.FindByName(r.Context(), req.Name); err == nil {
		writeError(w, s.log, types.NewInvalidOperationError(
			"Event type '%s' already exists with id '%s'.", req.Name, existing.ID))
		return
	} else if !types.IsNotFound(err) {
		writeError(w, s.log, err)
		return
	}

	eventType := &types.EventType{
		ID:        types.NewEventTypeID(),
		Name:      req.Name,
		CreatedAt: time.Now(),
	}
	if err := s.stores.EventTypes.Insert(r.Context(), eventType); err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, eventType)
}

// handleListEventTypes returns all event types.
func (s *Service) handleListEventTypes(w http.ResponseWriter, r *http.Request) {
	eventTypes, err := s.stores.EventTypes.List(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, eventTypes)
}

// handleGetEventType returns one event type by ID.
func (s *Service) handleGetEventType(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseEventTypeID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a valid UUID")
		return
	}

	eventType, err := s.stores.EventTypes.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, eventType)
}

// handleDeleteEventType removes an event type unless rules still
// reference it.
func (s *Service) handleDeleteEventType(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseEventTypeID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a valid UUID")
		return
	}

	if err := s.stores.EventTypes.Delete(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
