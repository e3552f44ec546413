package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"cuentas/internal/batch"
	"cuentas/internal/core"
)

type submitBatchRequest struct {
	Date      string                     `json:"date" validate:"required"`
	Entregado decimal.Decimal            `json:"entregado" validate:"gte=0"`
	Values    map[string]decimal.Decimal `json:"values" validate:"dive,keys,required,endkeys,gte=0"`
}

type submitBatchResponse struct {
	Message            string   `json:"message"`
	BatchID            string   `json:"batch_id"`
	MovimientosCreados int      `json:"movimientos_creados"`
	Total              string   `json:"total"`
	Diferencia         string   `json:"diferencia"`
	Alertas            []string `json:"alertas"`
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "submit_batch", err)
		return
	}
	d, err := parseDate("date", req.Date)
	if err != nil {
		s.writeError(w, r, "submit_batch", err)
		return
	}

	entregado, err := money("entregado", req.Entregado)
	if err != nil {
		s.writeError(w, r, "submit_batch", err)
		return
	}
	values := make(map[string]core.Money, len(req.Values))
	for k, v := range req.Values {
		if values[k], err = money("values."+k, v); err != nil {
			s.writeError(w, r, "submit_batch", err)
			return
		}
	}
	summary, err := s.deps.Batches.Submit(r.Context(), batch.Submission{
		Date:      d,
		Entregado: entregado,
		Values:    values,
	})
	if err != nil {
		s.writeError(w, r, "submit_batch", err)
		return
	}
	s.structured.LogBatchProcessed(r.Context(), summary.BatchID, summary.Date.String(),
		summary.MovementsCreated, summary.Diferencia.Cents, len(summary.Alerts))

	alerts := make([]string, 0, len(summary.Alerts))
	for _, a := range summary.Alerts {
		alerts = append(alerts, a.String())
	}
	NewJSONResponse().Status(http.StatusCreated).Body(submitBatchResponse{
		Message:            "Planilla guardada",
		BatchID:            summary.BatchID,
		MovimientosCreados: summary.MovementsCreated,
		Total:              summary.Total.String(),
		Diferencia:         summary.Diferencia.String(),
		Alertas:            alerts,
	}).Write(w)
}
