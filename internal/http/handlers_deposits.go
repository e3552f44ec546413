package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"cuentas/internal/deposits"
)

type createDepositRequest struct {
	Description string          `json:"description" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	IngressDate string          `json:"ingress_date" validate:"required"`
	AccountID   *int64          `json:"account_id,omitempty" validate:"omitempty,gt=0"`
}

type assignDepositRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

type syncDepositsRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

type syncDepositsResponse struct {
	Linked               int      `json:"linked"`
	Skipped              int      `json:"skipped"`
	AccountsRecalculated []int64  `json:"accounts_recalculated"`
	Errors               []string `json:"errors"`
}

func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req createDepositRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "create_deposit", err)
		return
	}
	d, err := parseDate("ingress_date", req.IngressDate)
	if err != nil {
		s.writeError(w, r, "create_deposit", err)
		return
	}
	amount, err := money("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "create_deposit", err)
		return
	}
	dep, err := s.deps.Deposits.Create(r.Context(), deposits.CreateParams{
		Description: sanitizeInput(req.Description),
		Amount:      amount,
		IngressDate: d,
		AccountID:   req.AccountID,
	})
	if err != nil {
		s.writeError(w, r, "create_deposit", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toDepositView(dep)).Write(w)
}

func (s *Server) handleAssignDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "assign_deposit", err)
		return
	}
	var req assignDepositRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "assign_deposit", err)
		return
	}
	dep, err := s.deps.Deposits.AssignAccount(r.Context(), id, req.AccountID)
	if err != nil {
		s.writeError(w, r, "assign_deposit", err)
		return
	}
	NewJSONResponse().Body(toDepositView(dep)).Write(w)
}

// handleSyncDeposits links pending deposits now instead of waiting for the
// worker. An empty body syncs with the default limit.
func (s *Server) handleSyncDeposits(w http.ResponseWriter, r *http.Request) {
	var req syncDepositsRequest
	if r.ContentLength != 0 {
		if err := s.decodeJSON(r, &req); err != nil {
			s.writeError(w, r, "sync_deposits", err)
			return
		}
	}
	res, err := s.deps.Deposits.Sync(r.Context(), req.Limit)
	if err != nil {
		s.writeError(w, r, "sync_deposits", err)
		return
	}
	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, e.Error())
	}
	recalculated := res.AccountsRecalculated
	if recalculated == nil {
		recalculated = []int64{}
	}
	NewJSONResponse().Body(syncDepositsResponse{
		Linked:               res.Linked,
		Skipped:              res.Skipped,
		AccountsRecalculated: recalculated,
		Errors:               errs,
	}).Write(w)
}
