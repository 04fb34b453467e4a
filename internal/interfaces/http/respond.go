package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wordmine/wordmine/internal/errs"
)

// statusForKind maps error kinds to HTTP status codes.
var statusForKind = map[string]int{
	"not_found":            http.StatusNotFound,
	"validation":           http.StatusBadRequest,
	"conflict":             http.StatusConflict,
	"insufficient_funds":   http.StatusPaymentRequired,
	"no_candidate":         http.StatusUnprocessableEntity,
	"external_unavailable": http.StatusServiceUnavailable,
	"internal":             http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response body")
	}
}

// writeError maps the error's kind to a status code and emits the uniform
// envelope. Internal errors never leak their message to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.Kind(err)
	status, ok := statusForKind[kind]
	if !ok {
		status, kind = http.StatusInternalServerError, "internal"
	}

	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      kind,
		RequestID: requestIDFrom(r.Context()),
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", resp.RequestID).Msg("Request failed")
		resp.Error = "internal error"
	}

	var fundsErr *errs.FundsError
	if errors.As(err, &fundsErr) {
		resp.Currency = fundsErr.Currency
		resp.Required = fundsErr.Required
		resp.Available = fundsErr.Available
	}

	writeJSON(w, status, resp)
}

// decodeBody parses a JSON request body, rejecting unknown garbage early.
func decodeBody(r *http.Request, into interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(into); err != nil {
		return errs.Validation("malformed request body: %v", err)
	}
	return nil
}
