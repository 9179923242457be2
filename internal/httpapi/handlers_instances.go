package httpapi

import (
	"encoding/json"
	"net/http"

	"billbook/internal/engine"
)

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	views, err := s.engine.MonthInstances(r.Context(), year, month)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, views)
}

func (s *Server) handlePatchInstance(w http.ResponseWriter, r *http.Request) {
	payload, err := rawBodyWith(r, "instance_id", r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.engine.Dispatch(r.Context(), engine.Action{
		Type:    engine.ActionUpdateInstanceFields,
		Payload: payload,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	payload, err := rawBodyWith(r, "instance_id", r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.engine.Dispatch(r.Context(), engine.Action{
		Type:    engine.ActionAddPayment,
		Payload: payload,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

func (s *Server) handleUndoPaid(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.UndoAllPayments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (s *Server) handleInstanceEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.InstanceEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, events)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	payments, err := s.engine.MonthPayments(r.Context(), year, month)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, payments)
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	raw, err := json.Marshal(map[string]string{"payment_id": r.PathValue("id")})
	if err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.engine.Dispatch(r.Context(), engine.Action{
		Type:    engine.ActionUndoPayment,
		Payload: raw,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
