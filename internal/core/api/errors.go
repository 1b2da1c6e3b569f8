package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tripwirehq/tripwire/internal/types"
)

/*
 * Error-to-status mapping.
 *
 * The domain error taxonomy in internal/types maps onto HTTP statuses:
 *   - ValidationError, PredicateError, PredicateMatchError -> 400
 *   - NotFoundError                                        -> 404
 *   - InvalidOperationError                                -> 409
 *   - ErrPayloadTooLarge                                   -> 413
 *   - anything else                                        -> 500
 *
 * 500 responses never leak internals; the cause is logged server-side.
 */

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a domain error to its HTTP status and writes the JSON
// error body.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		validation     *types.ValidationError
		predicate      *types.PredicateError
		predicateMatch *types.PredicateMatchError
		notFound       *types.NotFoundError
		invalidOp      *types.InvalidOperationError
	)

	switch {
	case errors.As(err, &validation),
		errors.As(err, &predicate),
		errors.As(err, &predicateMatch):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &invalidOp):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrPayloadTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// writeBadRequest writes a 400 with the given message.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
