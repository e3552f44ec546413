package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"cuentas/internal/core"
	"cuentas/internal/ledger"
)

type createAccountRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type appendMovementRequest struct {
	Date      string          `json:"date" validate:"required"`
	Direction string          `json:"direction" validate:"required,oneof=INGRESO EGRESO ingreso egreso"`
	Concept   string          `json:"concept" validate:"required,max=200"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
}

type editMovementRequest struct {
	Date    *string          `json:"date,omitempty"`
	Concept *string          `json:"concept,omitempty" validate:"omitempty,min=1,max=200"`
	Amount  *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

type movementPageResponse struct {
	Items    []movementView `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type importResponse struct {
	Inserted int            `json:"inserted"`
	Errors   []rowErrorView `json:"errors"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Ledger.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, r, "list_accounts", err)
		return
	}
	NewJSONResponse().Body(mapSlice(accounts, toAccountView)).Write(w)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "create_account", err)
		return
	}
	acc, err := s.deps.Ledger.CreateAccount(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		s.writeError(w, r, "create_account", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toAccountView(acc)).Write(w)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "get_account", err)
		return
	}
	acc, err := s.deps.Ledger.GetAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "get_account", err)
		return
	}
	NewJSONResponse().Body(toAccountView(acc)).Write(w)
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "list_movements", err)
		return
	}
	q := r.URL.Query()
	mq := ledger.MovementQuery{AccountID: id}
	if mq.From, err = queryDate(q, "from"); err != nil {
		s.writeError(w, r, "list_movements", err)
		return
	}
	if mq.To, err = queryDate(q, "to"); err != nil {
		s.writeError(w, r, "list_movements", err)
		return
	}
	if v := q.Get("direction"); v != "" {
		if mq.Direction, err = core.ParseDirection(v); err != nil {
			s.writeError(w, r, "list_movements", core.NewValidationError("direction", err))
			return
		}
	}
	if mq.Page, err = queryInt(q, "page", 1); err != nil {
		s.writeError(w, r, "list_movements", err)
		return
	}
	if mq.PageSize, err = queryInt(q, "page_size", 50); err != nil {
		s.writeError(w, r, "list_movements", err)
		return
	}

	page, err := s.deps.Ledger.ListMovements(r.Context(), mq)
	if err != nil {
		s.writeError(w, r, "list_movements", err)
		return
	}
	NewJSONResponse().Body(movementPageResponse{
		Items:    mapSlice(page.Items, toMovementView),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}).Write(w)
}

func (s *Server) handleAppendMovement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "append_movement", err)
		return
	}
	var req appendMovementRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "append_movement", err)
		return
	}
	d, err := parseDate("date", req.Date)
	if err != nil {
		s.writeError(w, r, "append_movement", err)
		return
	}
	dir, err := core.ParseDirection(req.Direction)
	if err != nil {
		s.writeError(w, r, "append_movement", core.NewValidationError("direction", err))
		return
	}

	amount, err := money("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "append_movement", err)
		return
	}

	m, err := s.deps.Ledger.Append(r.Context(), ledger.AppendParams{
		AccountID: id,
		Date:      d,
		Direction: dir,
		Concept:   sanitizeInput(req.Concept),
		Amount:    amount,
	})
	if err != nil {
		s.writeError(w, r, "append_movement", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toMovementView(m)).Write(w)
}

func (s *Server) handleEditMovement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "edit_movement", err)
		return
	}
	var req editMovementRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "edit_movement", err)
		return
	}

	var p ledger.EditParams
	if req.Amount != nil {
		m, err := money("amount", *req.Amount)
		if err != nil {
			s.writeError(w, r, "edit_movement", err)
			return
		}
		p.Amount = &m
	}
	if req.Concept != nil {
		c := sanitizeInput(*req.Concept)
		p.Concept = &c
	}
	if req.Date != nil {
		d, err := parseDate("date", *req.Date)
		if err != nil {
			s.writeError(w, r, "edit_movement", err)
			return
		}
		p.Date = &d
	}

	m, err := s.deps.Ledger.Edit(r.Context(), id, p)
	if err != nil {
		s.writeError(w, r, "edit_movement", err)
		return
	}
	NewJSONResponse().Body(toMovementView(m)).Write(w)
}

func (s *Server) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "delete_movement", err)
		return
	}
	if err := s.deps.Ledger.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, "delete_movement", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleImportMovements takes a raw CSV body of fecha,tipo,concepto,monto.
func (s *Server) handleImportMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, "import_movements", err)
		return
	}
	res, err := s.deps.Ledger.Import(r.Context(), id, http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, r, "import_movements", err)
		return
	}
	NewJSONResponse().Body(importResponse{
		Inserted: res.Inserted,
		Errors:   toRowErrorViews(res.Errors),
	}).Write(w)
}
