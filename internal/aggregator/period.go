package aggregator

import (
	"time"

	"cuentas/internal/core"
)

// dueDays is how long after a quincena closes its payment falls due.
const dueDays = 5

// WeekBoundaries returns the Monday and Sunday of the week containing d.
func WeekBoundaries(d core.Date) (start, end core.Date) {
	offset := (int(d.Weekday()) + 6) % 7
	start = d.AddDays(-offset)
	return start, start.AddDays(6)
}

// NextMonday returns the first Monday strictly after d. A Monday maps to the
// following Monday, so every day of a week shares the same payment date.
func NextMonday(d core.Date) core.Date {
	offset := (8 - int(d.Weekday())) % 7
	if offset == 0 {
		offset = 7
	}
	return d.AddDays(offset)
}

type QuincenaPeriod struct {
	Half  core.Quincena
	Start core.Date
	End   core.Date
	Due   core.Date
}

// QuincenaInfo splits the month at the 15th: PRIMERA is 1..15, SEGUNDA is
// 16..last day. Payment is due five days after the period ends.
func QuincenaInfo(d core.Date) QuincenaPeriod {
	y, m := d.Year(), d.Month()
	p := QuincenaPeriod{Half: core.Primera, Start: core.NewDate(y, m, 1), End: core.NewDate(y, m, 15)}
	if d.Day() > 15 {
		last := time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
		p = QuincenaPeriod{Half: core.Segunda, Start: core.NewDate(y, m, 16), End: core.NewDate(y, m, last)}
	}
	p.Due = p.End.AddDays(dueDays)
	return p
}
