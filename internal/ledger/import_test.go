package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuentas/internal/core"
)

func TestImport_SkipsBadRows(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "ICBC")
	ctx := context.Background()

	input := strings.Join([]string{
		"Fecha,Tipo,Concepto,Monto",
		"2024-01-01,INGRESO,Alquiler,1000",
		"2024-01-02,INGRES,Typo,500",
		"",
		"03/01/2024,egreso,\"Luz, gas\",\"250,50\"",
		"2024-01-04,EGRESO,Zero,0",
		"not-a-date,EGRESO,X,10",
		"2024-01-05,EGRESO,Short",
	}, "\n")

	res, err := l.Import(ctx, acc.ID, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	require.Len(t, res.Errors, 4)

	assert.Equal(t, 3, res.Errors[0].Row)
	assert.True(t, errors.Is(res.Errors[0], core.ErrInvalidDirection))
	assert.Equal(t, 6, res.Errors[1].Row)
	assert.True(t, errors.Is(res.Errors[1], core.ErrInvalidAmount))
	assert.Equal(t, 7, res.Errors[2].Row)
	assert.True(t, errors.Is(res.Errors[2], core.ErrInvalidDate))
	assert.Equal(t, 8, res.Errors[3].Row)

	got, err := l.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000-25050), got.Balance.Cents)

	movements := requireConsistent(t, l, acc.ID)
	require.Len(t, movements, 2)
	assert.Equal(t, "Luz, gas", movements[1].Concept)
}

func TestImport_NoHeader(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "CAJA")

	res, err := l.Import(context.Background(), acc.ID, strings.NewReader("2024-02-01,INGRESO,Venta,10\n2024-01-01,INGRESO,Venta,5\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Empty(t, res.Errors)
	requireConsistent(t, l, acc.ID)
}

func TestImport_UnknownAccount(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Import(context.Background(), 77, strings.NewReader("2024-02-01,INGRESO,Venta,10\n"))
	assert.True(t, core.IsConsistency(err))
}

func TestParseRow(t *testing.T) {
	p, err := ParseRow(" 2024-01-01, ingreso , Cobro ,1.234,56")
	require.Error(t, err, "unquoted comma decimal splits into too many fields")

	p, err = ParseRow(`2024-01-01,ingreso,Cobro,"1.234,56"`)
	require.NoError(t, err)
	assert.Equal(t, core.Ingreso, p.Direction)
	assert.Equal(t, int64(123456), p.Amount.Cents)
	assert.Equal(t, "Cobro", p.Concept)
}

func TestImport_AmountOutOfRange(t *testing.T) {
	l := newTestLedger(t)
	acc := newAccount(t, l, "CAJA")

	input := "2024-02-01,INGRESO,Venta,184467440737095516.17\n2024-02-02,INGRESO,Venta,10\n"
	res, err := l.Import(context.Background(), acc.ID, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Row)
	assert.ErrorIs(t, res.Errors[0], core.ErrInvalidAmount)

	movements := requireConsistent(t, l, acc.ID)
	require.Len(t, movements, 1)
	assert.Equal(t, int64(1000), movements[0].Amount.Cents)
}
