package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/dirty-laundry/internal/service"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps a service error to an HTTP status and a client-safe
// message. Unknown errors become a generic 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, service.ErrSessionNotFound.Error()
	case errors.Is(err, service.ErrNotHost),
		errors.Is(err, service.ErrNotInSession):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrStaleSubmission),
		errors.Is(err, service.ErrSessionInProgress),
		errors.Is(err, service.ErrPhaseNotComplete),
		errors.Is(err, service.ErrNotEnoughPlayers),
		errors.Is(err, service.ErrGameOver),
		errors.Is(err, service.ErrCardAlreadySent),
		errors.Is(err, service.ErrNotDiscussion):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrInvalidPayload),
		errors.Is(err, service.ErrInvalidDisplayName),
		errors.Is(err, service.ErrUnsupportedAction),
		errors.Is(err, service.ErrInvalidVoteField),
		errors.Is(err, service.ErrInvalidVoteTarget),
		errors.Is(err, service.ErrInvalidCard),
		errors.Is(err, service.ErrInvalidRecipient):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrSelfVote),
		errors.Is(err, service.ErrMissingCapability),
		errors.Is(err, cabin.ErrRumorUnchanged),
		errors.Is(err, cabin.ErrRumorMismatch):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, service.ErrCodeExhausted):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeServiceError writes the response for an error returned by the
// session service, logging the ones the client can do nothing about.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, status, msg)
}
