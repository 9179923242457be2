package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"billbook/internal/engine"
)

func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Export(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="backup.json"`)
	writeData(w, http.StatusOK, snap)
}

func (s *Server) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	var snap engine.Snapshot
	if err := decodeBody(r, &snap); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.engine.Import(r.Context(), snap); err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"imported": true,
		"templates": len(snap.Templates),
		"instances": len(snap.Instances),
	})
}

var csvHeader = []string{
	"status", "name", "category", "amount",
	"due_date", "paid_date", "note", "autopay", "essential",
}

// handleExportCSV writes the month's instances as a fixed 9-column
// CSV. encoding/csv handles quote escaping for fields containing
// commas, quotes or newlines.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
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

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="billbook-%04d-%02d.csv"`, year, month))

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		s.logger.Error("Failed writing CSV header", "error", err)
		return
	}
	for _, v := range views {
		record := []string{
			string(v.Status),
			v.Name,
			v.Category,
			v.Amount.String(),
			v.DueDate.String(),
			v.PaidDate.String(),
			v.Note,
			strconv.FormatBool(v.Autopay),
			strconv.FormatBool(v.Essential),
		}
		if err := cw.Write(record); err != nil {
			s.logger.Error("Failed writing CSV record", "error", err, "id", v.ID)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("Failed flushing CSV export", "error", err)
	}
}
