package http

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) account(t *testing.T, name string) accountView {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/accounts", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[accountView](t, rec)
}

func TestAccountsAndMovements(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Banco Nacion")
	base := fmt.Sprintf("/api/accounts/%d", acc.ID)

	rec := f.do(t, http.MethodPost, base+"/movements", map[string]any{
		"date": "2024-03-10", "direction": "INGRESO", "concept": "Cobro", "amount": "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[movementView](t, rec)
	assert.Equal(t, "1000.00", second.ResultingBalance)

	// Backdated egreso lands first and refolds the later one.
	rec = f.do(t, http.MethodPost, base+"/movements", map[string]any{
		"date": "05/03/2024", "direction": "egreso", "concept": "Luz", "amount": 250.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[movementView](t, rec)
	assert.Equal(t, "2024-03-05", first.Date)
	assert.Equal(t, "-250.50", first.ResultingBalance)

	rec = f.do(t, http.MethodGet, base+"/movements?page_size=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[movementPageResponse](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Equal(t, "749.50", page.Items[1].ResultingBalance)

	rec = f.do(t, http.MethodGet, base+"/movements?direction=EGRESO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[movementPageResponse](t, rec).Items, 1)

	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/movements/%d", first.ID), map[string]any{"amount": "500"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "500.00", decode[accountView](t, rec).Balance)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/movements/%d", first.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, base, nil)
	assert.Equal(t, "1000.00", decode[accountView](t, rec).Balance)
}

func TestMovementErrors(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Banco Nacion")
	base := fmt.Sprintf("/api/accounts/%d/movements", acc.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"zero amount", http.MethodPost, base, map[string]any{"date": "2024-01-01", "direction": "INGRESO", "concept": "x", "amount": "0"}, http.StatusUnprocessableEntity},
		{"amount out of range", http.MethodPost, base, map[string]any{"date": "2024-01-01", "direction": "INGRESO", "concept": "x", "amount": "184467440737095516.17"}, http.StatusUnprocessableEntity},
		{"bad direction", http.MethodPost, base, map[string]any{"date": "2024-01-01", "direction": "ENTRADA", "concept": "x", "amount": "1"}, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, base, map[string]any{"date": "2024-13-01", "direction": "INGRESO", "concept": "x", "amount": "1"}, http.StatusUnprocessableEntity},
		{"malformed json", http.MethodPost, base, "{", http.StatusUnprocessableEntity},
		{"unknown account", http.MethodPost, "/api/accounts/999/movements", map[string]any{"date": "2024-01-01", "direction": "INGRESO", "concept": "x", "amount": "1"}, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/accounts/abc", nil, http.StatusUnprocessableEntity},
		{"missing account", http.MethodGet, "/api/accounts/999", nil, http.StatusNotFound},
		{"missing movement", http.MethodDelete, "/api/movements/999", nil, http.StatusNotFound},
		{"empty edit", http.MethodPatch, "/api/movements/1", map[string]any{}, http.StatusUnprocessableEntity},
		{"reversed range", http.MethodGet, base + "?from=2024-02-01&to=2024-01-01", nil, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestValidationFields(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/accounts", map[string]string{"name": ""})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "required", body.Fields["name"])
}

func TestImportMovements(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Banco Nacion")

	csv := "Fecha,Tipo,Concepto,Monto\n2024-01-01,INGRESO,Alquiler,1000\n2024-01-02,INGRES,Typo,500\n"
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/accounts/%d/import", acc.ID), csv)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[importResponse](t, rec)
	assert.Equal(t, 1, res.Inserted)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)
}

func TestSubmitBatch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/batches", map[string]any{
		"date":      "2024-01-03",
		"entregado": "950",
		"values":    map[string]any{"efectivo": "1000", "devoluciones": "100", "proveedores": "200"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[submitBatchResponse](t, rec)
	assert.Equal(t, 3, res.MovimientosCreados)
	assert.Equal(t, "700.00", res.Total)
	assert.Equal(t, "250.00", res.Diferencia)
	require.Len(t, res.Alertas, 1)
	assert.Contains(t, res.Alertas[0], "250.00")
	assert.NotEmpty(t, res.BatchID)

	rec = f.do(t, http.MethodGet, "/api/buckets?kind=weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	buckets := decode[[]bucketView](t, rec)
	require.Len(t, buckets, 1)
	assert.Equal(t, "200.00", buckets[0].Total)
	assert.Equal(t, "2024-01-01", buckets[0].PeriodStart)
	assert.Equal(t, "2024-01-08", buckets[0].ScheduledPaymentDate)

	path := fmt.Sprintf("/api/buckets/%d/paid", buckets[0].ID)
	rec = f.do(t, http.MethodPost, path, map[string]string{"paid_date": "2024-01-08"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[bucketView](t, rec).Paid)

	rec = f.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[bucketView](t, rec).Paid)
}

func TestSubmitBatchErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{"unknown concept", map[string]any{"date": "2024-01-03", "values": map[string]any{"nope": "1"}}},
		{"negative value", map[string]any{"date": "2024-01-03", "values": map[string]any{"efectivo": "-1"}}},
		{"negative entregado", map[string]any{"date": "2024-01-03", "entregado": "-5"}},
		{"value out of range", map[string]any{"date": "2024-01-03", "values": map[string]any{"efectivo": "184467440737095516.17"}}},
		{"missing date", map[string]any{"values": map[string]any{"efectivo": "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/batches", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		})
	}
}

func TestPosnet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/batches", map[string]any{
		"date": "2024-02-05", "entregado": "500", "values": map[string]any{"posnet": "500"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/posnet/import", "fecha,monto\n2024-02-05,480\nbad,1\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	imp := decode[posnetImportResponse](t, rec)
	assert.Equal(t, 1, imp.Updated)
	assert.Len(t, imp.Errors, 1)

	rec = f.do(t, http.MethodGet, "/api/posnet/daily?from=2024-02-01&to=2024-02-29", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	daily := decode[[]dailyPosnetView](t, rec)
	require.Len(t, daily, 1)
	assert.Equal(t, "500.00", daily[0].TotalPosnet)
	assert.Equal(t, "480.00", daily[0].MontoIngresadoBanco)
	assert.Equal(t, "20.00", daily[0].Diferencia)

	rec = f.do(t, http.MethodGet, "/api/posnet/monthly?year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	monthly := decode[[]monthlyPosnetView](t, rec)
	require.Len(t, monthly, 1)
	assert.Equal(t, 2, monthly[0].Month)
	assert.Equal(t, "500.00", monthly[0].TotalRentas)
}

func TestDeposits(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Banco Provincia")

	rec := f.do(t, http.MethodPost, "/api/deposits", map[string]any{
		"description": "Transferencia cliente", "amount": "300", "ingress_date": "2024-04-02",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dep := decode[depositView](t, rec)
	assert.Nil(t, dep.AccountID)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/deposits/%d/account", dep.ID), map[string]any{"account_id": acc.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/deposits/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[syncDepositsResponse](t, rec)
	assert.Equal(t, 1, res.Linked)
	assert.Equal(t, []int64{acc.ID}, res.AccountsRecalculated)

	rec = f.do(t, http.MethodPost, "/api/deposits/sync", map[string]int{"limit": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[syncDepositsResponse](t, rec).Linked)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/accounts/%d", acc.ID), nil)
	assert.Equal(t, "300.00", decode[accountView](t, rec).Balance)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/deposits/%d/account", dep.ID), map[string]any{"account_id": acc.ID})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}
