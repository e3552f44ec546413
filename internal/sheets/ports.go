// Package sheets defines the outbound ports used to mirror committed batches
// into a spreadsheet. The database stays the source of truth; the mirror is
// a read-only copy for whoever reconciles the day by hand.
package sheets

import (
	"context"

	"cuentas/internal/core"
)

type (
	MovementLine struct {
		Account   string
		Direction core.Direction
		Concept   string
		Amount    core.Money
		Balance   core.Money
	}

	// BatchRecord is one submitted day: its summary plus every movement the
	// batch created.
	BatchRecord struct {
		BatchID    string
		Date       core.Date
		Entregado  core.Money
		Total      core.Money
		Diferencia core.Money
		Alerts     []string
		Movements  []MovementLine
	}

	BatchWriter interface {
		AppendBatch(ctx context.Context, rec BatchRecord) (rowRef string, err error)
	}

	// BatchIndex reports whether a batch is already mirrored, so redelivered
	// events do not duplicate rows.
	BatchIndex interface {
		HasBatch(ctx context.Context, year int, batchID string) (bool, error)
	}

	Mirror interface {
		BatchWriter
		BatchIndex
	}
)
