package http

import (
	"net/http"
	"time"

	"cuentas/internal/core"
)

type posnetImportResponse struct {
	Updated int            `json:"updated"`
	Errors  []rowErrorView `json:"errors"`
}

// handleImportPosnet takes a raw CSV body of date,bank_amount.
func (s *Server) handleImportPosnet(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Aggregator.ImportPosnetCSV(r.Context(), http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, r, "import_posnet", err)
		return
	}
	NewJSONResponse().Body(posnetImportResponse{
		Updated: res.Updated,
		Errors:  toRowErrorViews(res.Errors),
	}).Write(w)
}

func (s *Server) handleListDailyPosnet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := queryDate(q, "from")
	if err != nil {
		s.writeError(w, r, "list_daily_posnet", err)
		return
	}
	to, err := queryDate(q, "to")
	if err != nil {
		s.writeError(w, r, "list_daily_posnet", err)
		return
	}
	recs, err := s.deps.Aggregator.ListDailyPosnet(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, "list_daily_posnet", err)
		return
	}
	NewJSONResponse().Body(mapSlice(recs, toDailyPosnetView)).Write(w)
}

// handleListMonthlyPosnet defaults to the current year.
func (s *Server) handleListMonthlyPosnet(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r.URL.Query(), "year", time.Now().Year())
	if err != nil {
		s.writeError(w, r, "list_monthly_posnet", err)
		return
	}
	if year < 1900 || year > 9999 {
		s.writeError(w, r, "list_monthly_posnet", core.NewValidationError("year", core.ErrInvalidDate))
		return
	}
	recs, err := s.deps.Aggregator.ListMonthlyPosnet(r.Context(), year)
	if err != nil {
		s.writeError(w, r, "list_monthly_posnet", err)
		return
	}
	NewJSONResponse().Body(mapSlice(recs, toMonthlyPosnetView)).Write(w)
}
