package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/tripwirehq/tripwire/internal/types"
)

type ingestEventRequest struct {
	EventTypeID string        `json:"eventTypeId"`
	Payload     types.Payload `json:"payload"`
}

// handleIngestEvent persists one producer event and runs the realtime and
// sliding rules bound to its type. The response is written after every
// triggered rule has been evaluated and dispatched, so producers observe
// ingest-to-dispatch latency directly.
func (s *Service) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, types.MaxPayloadSize)

	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, s.log, types.ErrPayloadTooLarge)
			return
		}
		writeBadRequest(w, "malformed JSON body")
		return
	}

	eventTypeID, err := types.ParseEventTypeID(req.EventTypeID)
	if err != nil {
		writeBadRequest(w, "eventTypeId must be a valid UUID")
		return
	}
	if req.Payload == nil {
		writeBadRequest(w, "payload is required")
		return
	}

	// The event type must exist before anything is persisted.
	if _, err := s.stores.EventTypes.FindByID(r.Context(), eventTypeID); err != nil {
		writeError(w, s.log, err)
		return
	}

	event := &types.Event{
		ID:          types.NewEventID(),
		EventTypeID: eventTypeID,
		Payload:     req.Payload,
		CreatedAt:   time.Now(),
	}
	if err := s.stores.Events.Insert(r.Context(), event); err != nil {
		writeError(w, s.log, err)
		return
	}

	s.metrics.EventsIngested.WithLabelValues(string(eventTypeID)).Inc()

	requestID := middleware.GetReqID(r.Context())
	if err := s.engine.HandleEvent(r.Context(), event, requestID); err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}
