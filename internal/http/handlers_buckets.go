package http

import (
	"fmt"
	"net/http"
	"strings"

	"cuentas/internal/core"
	"cuentas/internal/storage"
)

type markPaidRequest struct {
	PaidDate string `json:"paid_date" validate:"required"`
}

// handleListBuckets filters by kind, concept_id, from, to and due=true.
func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f storage.BucketFilter
	var err error

	switch kind := core.BucketKind(strings.ToUpper(q.Get("kind"))); kind {
	case "", core.BucketWeekly, core.BucketBiweekly:
		f.Kind = kind
	default:
		s.writeError(w, r, "list_buckets", core.NewValidationError("kind", fmt.Errorf("unknown bucket kind %q", q.Get("kind"))))
		return
	}
	conceptID, err := queryInt(q, "concept_id", 0)
	if err != nil {
		s.writeError(w, r, "list_buckets", err)
		return
	}
	f.ConceptID = int64(conceptID)
	if f.From, err = queryDate(q, "from"); err != nil {
		s.writeError(w, r, "list_buckets", err)
		return
	}
	if f.To, err = queryDate(q, "to"); err != nil {
		s.writeError(w, r, "list_buckets", err)
		return
	}
	f.OnlyDue = q.Get("due") == "true"

	buckets, err := s.deps.Aggregator.ListBuckets(r.Context(), f)
	if err != nil {
		s.writeError(w, r, "list_buckets", err)
		return
	}
	NewJSONResponse().Body(mapSlice(buckets, toBucketView)).Write(w)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "mark_paid", err)
		return
	}
	var req markPaidRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "mark_paid", err)
		return
	}
	d, err := parseDate("paid_date", req.PaidDate)
	if err != nil {
		s.writeError(w, r, "mark_paid", err)
		return
	}
	b, err := s.deps.Aggregator.MarkPaid(r.Context(), id, d)
	if err != nil {
		s.writeError(w, r, "mark_paid", err)
		return
	}
	NewJSONResponse().Body(toBucketView(b)).Write(w)
}

func (s *Server) handleUnmarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "unmark_paid", err)
		return
	}
	b, err := s.deps.Aggregator.Unmark(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "unmark_paid", err)
		return
	}
	NewJSONResponse().Body(toBucketView(b)).Write(w)
}
