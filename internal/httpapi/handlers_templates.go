package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"billbook/internal/core"
	"billbook/internal/engine"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.engine.Templates(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, templates)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, core.Invalid("failed to read request body"))
		return
	}
	result, err := s.engine.Dispatch(r.Context(), engine.Action{
		Type:    engine.ActionCreateTemplate,
		Payload: json.RawMessage(payload),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	payload, err := rawBodyWith(r, "template_id", r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.engine.Dispatch(r.Context(), engine.Action{
		Type:    engine.ActionUpdateTemplate,
		Payload: payload,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// handleDeleteTemplate cascade-deletes a template. With year/month
// query parameters only instances from that month forward are removed;
// without them the template's whole history goes.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"template_id": r.PathValue("id")}
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, core.InvalidField("year", "must be an integer"))
			return
		}
		payload["year"] = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, core.InvalidField("month", "must be an integer"))
			return
		}
		payload["month"] = m
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.engine.Dispatch(r.Context(), engine.Action{
		Type:    engine.ActionDeleteTemplate,
		Payload: raw,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
