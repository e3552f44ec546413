package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Ingreso Direction = "INGRESO"
	Egreso  Direction = "EGRESO"
)

const (
	Rentas ConceptType = "RENTAS"
	Caja   ConceptType = "CAJA"
)

const (
	FrequencyNone     Frequency = "NONE"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
)

const (
	BucketWeekly   BucketKind = "WEEKLY"
	BucketBiweekly BucketKind = "BIWEEKLY"
)

const (
	Primera Quincena = "PRIMERA"
	Segunda Quincena = "SEGUNDA"
)

const (
	ReconciliationVEP   ReconciliationKind = "VEP"
	ReconciliationEPago ReconciliationKind = "EPAGO"
)

const dateLayout = "2006-01-02"

type (
	Direction          string
	ConceptType        string
	Frequency          string
	BucketKind         string
	Quincena           string
	ReconciliationKind string

	Date struct {
		time.Time
	}

	Account struct {
		ID      int64
		Name    string
		Balance Money
	}

	// Movement is one entry in an account's ordered log. ResultingBalance is the
	// account balance right after this movement is applied.
	Movement struct {
		ID               int64
		AccountID        int64
		Date             Date
		Direction        Direction
		Concept          string
		Amount           Money
		ResultingBalance Money
		OriginMovementID *int64 // weak reference, never cascades
		ConceptID        *int64
		BatchID          string
		CreatedAt        int64 // unix nanos, tie-break after Date
	}

	Concept struct {
		ID        int64
		Key       string
		Name      string
		Type      ConceptType
		Frequency Frequency
		Posnet    bool
	}

	PeriodBucket struct {
		ID                   int64
		Kind                 BucketKind
		ConceptID            int64
		Quincena             Quincena // empty for weekly buckets
		PeriodStart          Date
		PeriodEnd            Date
		Total                Money
		ScheduledPaymentDate Date
		Paid                 bool
		PaidDate             Date
	}

	MonthlyPosnet struct {
		Year        int
		Month       int
		TotalRentas Money
		TotalCaja   Money
	}

	DailyPosnet struct {
		Date                Date
		MontoRentas         Money
		MontoCaja           Money
		TotalPosnet         Money
		MontoIngresadoBanco Money
		Diferencia          Money
	}

	ReconciliationControl struct {
		ID         int64
		Kind       ReconciliationKind
		Date       Date
		ConceptID  int64
		Amount     Money
		MovementID int64
		BatchID    string
	}

	Deposit struct {
		ID               int64
		Description      string
		Amount           Money
		IngressDate      Date
		AccountID        *int64
		OriginMovementID *int64
		CreatedAt        time.Time
	}
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDirection   = errors.New("invalid direction")
	ErrInvalidDate        = errors.New("invalid date")
	ErrUnknownConcept     = errors.New("unknown concept")
	ErrEmptyConcept       = errors.New("empty concept")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidFrequency   = errors.New("invalid payment frequency")
	ErrInvalidConceptType = errors.New("invalid concept type")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts ISO dates (2024-01-31) and day-first dates (31/01/2024).
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range []string{dateLayout, "02/01/2006", "2/1/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// ParseDirection is case-insensitive and rejects anything but INGRESO and EGRESO.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

func (d Direction) Validate() error {
	switch d {
	case Ingreso, Egreso:
		return nil
	}
	return ErrInvalidDirection
}

// Sign returns +1 for INGRESO and -1 for EGRESO.
func (d Direction) Sign() int64 {
	if d == Egreso {
		return -1
	}
	return 1
}

func (t ConceptType) Validate() error {
	switch t {
	case Rentas, Caja:
		return nil
	}
	return ErrInvalidConceptType
}

func (f Frequency) Validate() error {
	switch f {
	case FrequencyNone, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return nil
	}
	return ErrInvalidFrequency
}

// Signed is the amount with the movement's direction applied.
func (m Movement) Signed() Money {
	return m.Amount.Signed(m.Direction)
}

func (m Movement) Validate() error {
	if m.AccountID <= 0 {
		return NewValidationError("account_id", ErrNotFound)
	}
	if err := m.Date.Validate(); err != nil {
		return NewValidationError("date", err)
	}
	if err := m.Direction.Validate(); err != nil {
		return NewValidationError("direction", err)
	}
	if err := m.Amount.Validate(); err != nil {
		return NewValidationError("amount", err)
	}
	if len(m.Concept) > 200 {
		return NewValidationError("concept", errors.New("concept too long (max 200 characters)"))
	}
	return nil
}

func (c Concept) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return NewValidationError("key", ErrEmptyConcept)
	}
	if err := c.Type.Validate(); err != nil {
		return NewValidationError("type", err)
	}
	if err := c.Frequency.Validate(); err != nil {
		return NewValidationError("frequency", err)
	}
	return nil
}

// Recompute keeps TotalPosnet and Diferencia consistent with the stored amounts.
func (p *DailyPosnet) Recompute() {
	p.TotalPosnet = p.MontoRentas.Add(p.MontoCaja)
	p.Diferencia = p.TotalPosnet.Sub(p.MontoIngresadoBanco)
}

// Linked reports whether the deposit already produced its ledger movement.
func (d Deposit) Linked() bool {
	return d.OriginMovementID != nil
}
