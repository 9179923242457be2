package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"billbook/internal/core"
)

type envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{OK: false, Error: &errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// writeErr maps a domain error onto the envelope and status code.
func writeErr(w http.ResponseWriter, err error) {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "invalid_input", ve.Message, ve.Fields)
		return
	}
	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, "not_found", nf.Error(), map[string]string{
			"kind": nf.Kind, "id": nf.ID,
		})
		return
	}
	if errors.Is(err, core.ErrAdvisorUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "collaborator_unavailable", "advisor is disabled or unreachable", nil)
		return
	}
	var se *core.StorageError
	if errors.As(err, &se) {
		writeError(w, http.StatusInternalServerError, "storage_failure", "storage operation failed", map[string]string{
			"op": se.Op,
		})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
}
