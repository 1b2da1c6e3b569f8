package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tripwirehq/tripwire/internal/target"
	"github.com/tripwirehq/tripwire/internal/types"
)

type createTargetRequest struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// handleCreateTarget registers a new webhook target. Header and body
// templates are stored verbatim; placeholders resolve at dispatch time.
func (s *Service) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}
	if err := validateTargetURL(req.URL); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := target.ValidateHeaders(req.Headers); err != nil {
		writeError(w, s.log, err)
		return
	}

	tgt := &types.Target{
		ID:        types.NewTargetID(),
		Name:      req.Name,
		URL:       req.URL,
		Headers:   req.Headers,
		Body:      req.Body,
		CreatedAt: time.Now(),
	}
	if err := s.stores.Targets.Insert(r.Context(), tgt); err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, tgt)
}

// handleListTargets returns all targets.
func (s *Service) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.stores.Targets.List(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

// handleGetTarget returns one target by ID.
func (s *Service) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseTargetID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a valid UUID")
		return
	}

	tgt, err := s.stores.Targets.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tgt)
}

// handleDeleteTarget removes a target unless rules still reference it.
func (s *Service) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseTargetID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a valid UUID")
		return
	}

	if err := s.stores.Targets.Delete(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateTargetURL requires an absolute http(s) URL.
func validateTargetURL(raw string) error {
	if raw == "" {
		return &types.ValidationError{Reason: "url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &types.ValidationError{Reason: "url must be an absolute http or https URL"}
	}
	return nil
}
