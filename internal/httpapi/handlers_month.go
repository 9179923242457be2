package httpapi

import (
	"net/http"

	"billbook/internal/core"
	"billbook/internal/engine"
)

func (s *Server) handleListFunds(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	funds, err := s.engine.SinkingFunds(r.Context(), year, month, boolQuery(r, "include_inactive"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, funds)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	summary, err := s.engine.MonthSummary(r.Context(), year, month, boolQuery(r, "essentials_only"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

// monthDocument is the itemized month read: summary, instances and
// fund projections in one response.
type monthDocument struct {
	Year         int                   `json:"year"`
	Month        int                   `json:"month"`
	Summary      engine.Summary        `json:"summary"`
	Instances    []engine.InstanceView `json:"instances"`
	SinkingFunds []engine.FundView     `json:"sinking_funds"`
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	summary, err := s.engine.MonthSummary(r.Context(), year, month, false)
	if err != nil {
		writeErr(w, err)
		return
	}
	instances, err := s.engine.MonthInstances(r.Context(), year, month)
	if err != nil {
		writeErr(w, err)
		return
	}
	funds, err := s.engine.SinkingFunds(r.Context(), year, month, false)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, monthDocument{
		Year:         year,
		Month:        month,
		Summary:      summary,
		Instances:    instances,
		SinkingFunds: funds,
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var action engine.Action
	if err := decodeBody(r, &action); err != nil {
		writeErr(w, err)
		return
	}
	if action.Type == "" {
		writeErr(w, core.InvalidField("type", "is required"))
		return
	}
	result, err := s.engine.Dispatch(r.Context(), action)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.GetSettings(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings core.Settings
	if err := decodeBody(r, &settings); err != nil {
		writeErr(w, err)
		return
	}
	saved, err := s.engine.PutSettings(r.Context(), settings)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, saved)
}

func (s *Server) handleAdvisorAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Question == "" {
		writeErr(w, core.InvalidField("question", "is required"))
		return
	}

	// The advisor sees the current month's summary as context.
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	summary, err := s.engine.MonthSummary(r.Context(), year, month, false)
	if err != nil {
		writeErr(w, err)
		return
	}
	answer, err := s.advisor.Ask(r.Context(), req.Question, summary)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"answer": answer})
}
