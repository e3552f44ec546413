// Package routing resolves each concept of the daily submission into the
// ordered list of postings it fans out to. The table is built once from the
// routing document; entries that cannot be honoured are reported as alerts and
// lose only the actions they break.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cuentas/internal/core"
	"cuentas/internal/storage"
)

type Role string

const (
	Suman    Role = "suman"
	Restan   Role = "restan"
	Deposito Role = "deposito"
	Gasto    Role = "gasto"
	Cuenta   Role = "cuenta"
)

func (r Role) valid() bool {
	switch r {
	case Suman, Restan, Deposito, Gasto, Cuenta:
		return true
	}
	return false
}

// Sign is +1 for concepts that add to the day's total and -1 otherwise.
func (r Role) Sign() int64 {
	if r == Suman {
		return 1
	}
	return -1
}

// Direction of the primary movement a concept of this role produces.
func (r Role) Direction() core.Direction {
	if r == Suman {
		return core.Ingreso
	}
	return core.Egreso
}

type ActionKind int

const (
	PrimaryMovement ActionKind = iota + 1
	WeeklyBucket
	BiweeklyBucket
	Posnet
	NamedAccountPosting
	Reconciliation
)

func (k ActionKind) String() string {
	switch k {
	case PrimaryMovement:
		return "primary_movement"
	case WeeklyBucket:
		return "weekly_bucket"
	case BiweeklyBucket:
		return "biweekly_bucket"
	case Posnet:
		return "posnet"
	case NamedAccountPosting:
		return "named_account_posting"
	case Reconciliation:
		return "reconciliation"
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// Route is the resolved fan-out for one concept.
type Route struct {
	Key            string
	Role           Role
	Concept        core.Concept
	Account        string
	Reconciliation core.ReconciliationKind
	Actions        []ActionKind

	// Disabled holds the reason a concept cannot be posted at all.
	Disabled string
}

// Ledger is the name of the primary account the concept posts to.
func (r Route) Ledger() string {
	return string(r.Concept.Type)
}

func (r Route) Has(k ActionKind) bool {
	for _, a := range r.Actions {
		if a == k {
			return true
		}
	}
	return false
}

type Table struct {
	routes   []Route
	byKey    map[string]int
	alerts   []core.Alert
	accounts map[string]int64
}

// Build validates every entry and returns the table with its alerts.
func Build(f *File) *Table {
	t := &Table{byKey: make(map[string]int), accounts: make(map[string]int64)}
	for i, e := range f.Concepts {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			t.alert("", fmt.Sprintf("entry %d has no key, ignored", i+1))
			continue
		}
		if _, dup := t.byKey[key]; dup {
			t.alert(key, "duplicate key, ignored")
			continue
		}
		t.byKey[key] = len(t.routes)
		t.routes = append(t.routes, t.resolve(key, e))
	}
	return t
}

func (t *Table) resolve(key string, e Entry) Route {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = key
	}
	r := Route{
		Key:  key,
		Role: Role(strings.ToLower(strings.TrimSpace(e.Role))),
		Concept: core.Concept{
			Key:       key,
			Name:      name,
			Type:      core.ConceptType(strings.ToUpper(strings.TrimSpace(e.Type))),
			Frequency: core.Frequency(strings.ToUpper(strings.TrimSpace(e.Frequency))),
			Posnet:    e.Posnet,
		},
		Account: strings.TrimSpace(e.Account),
	}
	if r.Concept.Frequency == "" {
		r.Concept.Frequency = core.FrequencyNone
	}

	if !r.Role.valid() {
		r.Disabled = fmt.Sprintf("unknown role %q", e.Role)
		t.alert(key, r.Disabled)
		return r
	}
	if err := r.Concept.Type.Validate(); err != nil {
		r.Disabled = fmt.Sprintf("unknown type %q", e.Type)
		t.alert(key, r.Disabled)
		return r
	}

	r.Actions = append(r.Actions, PrimaryMovement)

	switch r.Concept.Frequency {
	case core.FrequencyWeekly:
		r.Actions = append(r.Actions, WeeklyBucket)
	case core.FrequencyBiweekly:
		r.Actions = append(r.Actions, BiweeklyBucket)
	case core.FrequencyNone, core.FrequencyMonthly:
	default:
		t.alert(key, fmt.Sprintf("unknown frequency %q, bucket dropped", e.Frequency))
		r.Concept.Frequency = core.FrequencyNone
	}

	if r.Concept.Posnet {
		r.Actions = append(r.Actions, Posnet)
	}

	switch {
	case r.Account != "":
		r.Actions = append(r.Actions, NamedAccountPosting)
	case r.Role == Cuenta:
		t.alert(key, "role cuenta without account, named posting dropped")
	}

	if rec := strings.ToUpper(strings.TrimSpace(e.Reconciliation)); rec != "" {
		switch core.ReconciliationKind(rec) {
		case core.ReconciliationVEP, core.ReconciliationEPago:
			r.Reconciliation = core.ReconciliationKind(rec)
			r.Actions = append(r.Actions, Reconciliation)
		default:
			t.alert(key, fmt.Sprintf("unknown reconciliation %q, dropped", e.Reconciliation))
		}
	}
	return r
}

func (t *Table) alert(key, msg string) {
	t.alerts = append(t.alerts, core.Alert{Concept: key, Message: msg})
}

// Alerts lists the configuration problems found while building the table.
func (t *Table) Alerts() []core.Alert {
	return append([]core.Alert(nil), t.alerts...)
}

// Routes returns the routes in fan-out order.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

func (t *Table) Lookup(key string) (Route, bool) {
	i, ok := t.byKey[key]
	if !ok {
		return Route{}, false
	}
	return t.routes[i], true
}

// AccountID returns the id of a primary ledger or named account resolved by
// Sync.
func (t *Table) AccountID(name string) (int64, bool) {
	id, ok := t.accounts[name]
	return id, ok
}

// Sync stores every routable concept and makes sure the primary ledgers and
// named accounts exist, recording their ids on the table.
func (t *Table) Sync(ctx context.Context, q *storage.Queries) error {
	for i := range t.routes {
		r := &t.routes[i]
		if r.Disabled != "" {
			continue
		}
		if err := r.Concept.Validate(); err != nil {
			return fmt.Errorf("concept %s: %w", r.Key, err)
		}
		c, err := q.UpsertConcept(ctx, r.Concept)
		if err != nil {
			return fmt.Errorf("upsert concept %s: %w", r.Key, err)
		}
		r.Concept = c

		names := []string{r.Ledger()}
		if r.Has(NamedAccountPosting) {
			names = append(names, r.Account)
		}
		for _, name := range names {
			if _, ok := t.accounts[name]; ok {
				continue
			}
			acc, err := q.EnsureAccount(ctx, name)
			if err != nil {
				return fmt.Errorf("ensure account %s: %w", name, err)
			}
			t.accounts[name] = acc.ID
		}
	}

	for _, a := range t.alerts {
		slog.WarnContext(ctx, "Routing entry degraded", "concept", a.Concept, "alert", a.Message)
	}
	slog.InfoContext(ctx, "Routing table synced", "concepts", len(t.routes), "accounts", len(t.accounts))
	return nil
}
