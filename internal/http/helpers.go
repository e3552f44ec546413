package http

import (
	"cuentas/internal/core"
)

// JSON views of domain values. Amounts are rendered as fixed two-decimal
// strings and dates as YYYY-MM-DD.

type accountView struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

type movementView struct {
	ID               int64  `json:"id"`
	AccountID        int64  `json:"account_id"`
	Date             string `json:"date"`
	Direction        string `json:"direction"`
	Concept          string `json:"concept"`
	Amount           string `json:"amount"`
	ResultingBalance string `json:"resulting_balance"`
	OriginMovementID *int64 `json:"origin_movement_id,omitempty"`
	BatchID          string `json:"batch_id,omitempty"`
}

type bucketView struct {
	ID                   int64  `json:"id"`
	Kind                 string `json:"kind"`
	ConceptID            int64  `json:"concept_id"`
	Quincena             string `json:"quincena,omitempty"`
	PeriodStart          string `json:"period_start"`
	PeriodEnd            string `json:"period_end"`
	Total                string `json:"total"`
	ScheduledPaymentDate string `json:"scheduled_payment_date"`
	Paid                 bool   `json:"paid"`
	PaidDate             string `json:"paid_date,omitempty"`
}

type dailyPosnetView struct {
	Date                string `json:"date"`
	MontoRentas         string `json:"monto_rentas"`
	MontoCaja           string `json:"monto_caja"`
	TotalPosnet         string `json:"total_posnet"`
	MontoIngresadoBanco string `json:"monto_ingresado_banco"`
	Diferencia          string `json:"diferencia"`
}

type monthlyPosnetView struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	TotalRentas string `json:"total_rentas"`
	TotalCaja   string `json:"total_caja"`
}

type depositView struct {
	ID               int64  `json:"id"`
	Description      string `json:"description"`
	Amount           string `json:"amount"`
	IngressDate      string `json:"ingress_date"`
	AccountID        *int64 `json:"account_id,omitempty"`
	OriginMovementID *int64 `json:"origin_movement_id,omitempty"`
}

type rowErrorView struct {
	Row   int    `json:"row"`
	Line  string `json:"line"`
	Error string `json:"error"`
}

func toAccountView(a core.Account) accountView {
	return accountView{ID: a.ID, Name: a.Name, Balance: a.Balance.String()}
}

func toMovementView(m core.Movement) movementView {
	return movementView{
		ID:               m.ID,
		AccountID:        m.AccountID,
		Date:             m.Date.String(),
		Direction:        string(m.Direction),
		Concept:          m.Concept,
		Amount:           m.Amount.String(),
		ResultingBalance: m.ResultingBalance.String(),
		OriginMovementID: m.OriginMovementID,
		BatchID:          m.BatchID,
	}
}

func toBucketView(b core.PeriodBucket) bucketView {
	v := bucketView{
		ID:                   b.ID,
		Kind:                 string(b.Kind),
		ConceptID:            b.ConceptID,
		Quincena:             string(b.Quincena),
		PeriodStart:          b.PeriodStart.String(),
		PeriodEnd:            b.PeriodEnd.String(),
		Total:                b.Total.String(),
		ScheduledPaymentDate: b.ScheduledPaymentDate.String(),
		Paid:                 b.Paid,
	}
	if b.Paid && !b.PaidDate.IsZero() {
		v.PaidDate = b.PaidDate.String()
	}
	return v
}

func toDailyPosnetView(p core.DailyPosnet) dailyPosnetView {
	return dailyPosnetView{
		Date:                p.Date.String(),
		MontoRentas:         p.MontoRentas.String(),
		MontoCaja:           p.MontoCaja.String(),
		TotalPosnet:         p.TotalPosnet.String(),
		MontoIngresadoBanco: p.MontoIngresadoBanco.String(),
		Diferencia:          p.Diferencia.String(),
	}
}

func toMonthlyPosnetView(p core.MonthlyPosnet) monthlyPosnetView {
	return monthlyPosnetView{
		Year:        p.Year,
		Month:       p.Month,
		TotalRentas: p.TotalRentas.String(),
		TotalCaja:   p.TotalCaja.String(),
	}
}

func toDepositView(d core.Deposit) depositView {
	return depositView{
		ID:               d.ID,
		Description:      d.Description,
		Amount:           d.Amount.String(),
		IngressDate:      d.IngressDate.String(),
		AccountID:        d.AccountID,
		OriginMovementID: d.OriginMovementID,
	}
}

func toRowErrorViews(errs []core.RowError) []rowErrorView {
	out := make([]rowErrorView, 0, len(errs))
	for _, e := range errs {
		out = append(out, rowErrorView{Row: e.Row, Line: e.Line, Error: e.Err.Error()})
	}
	return out
}

func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
