package http

import (
	"net/http"
	"strings"

	"delat/internal/core"
	"delat/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	month, ok := s.month(w, r)
	if !ok {
		return
	}
	expenses, err := s.household.Expenses(r.Context(), r.PathValue("group"), month.Year, month.Month)
	if err != nil {
		writeServiceError(w, r, log.OpList, err, nil)
		return
	}
	out := make([]expenseJSON, len(expenses))
	for i, e := range expenses {
		out[i] = toExpenseJSON(e)
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	e, err := req.toExpense()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	id, matches, err := s.household.AddExpense(r.Context(), r.PathValue("group"), e, req.Confirm)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err, matches)
		return
	}
	createdResponse(w, r, id)
}

// handleCheckExpense scores a draft expense against stored ones without
// storing it.
func (s *Server) handleCheckExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	e, err := req.toCandidate()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	matches, err := s.household.CheckExpense(r.Context(), r.PathValue("group"), e)
	if err != nil {
		writeServiceError(w, r, log.OpCheck, err, nil)
		return
	}
	NewJSONResponse().Body(checkJSON{Duplicate: len(matches) > 0, Matches: toMatchesJSON(matches)}).Write(w)
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	month, ok := s.month(w, r)
	if !ok {
		return
	}
	incomes, err := s.household.Incomes(r.Context(), r.PathValue("group"), month.Year, month.Month)
	if err != nil {
		writeServiceError(w, r, log.OpList, err, nil)
		return
	}
	out := make([]incomeJSON, len(incomes))
	for i, inc := range incomes {
		out[i] = toIncomeJSON(inc)
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	inc, err := req.toIncome()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	id, matches, err := s.household.AddIncome(r.Context(), r.PathValue("group"), inc, req.Confirm)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err, matches)
		return
	}
	createdResponse(w, r, id)
}

func (s *Server) handleCheckIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	inc, err := req.toCandidate()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	matches, err := s.household.CheckIncome(r.Context(), r.PathValue("group"), inc)
	if err != nil {
		writeServiceError(w, r, log.OpCheck, err, nil)
		return
	}
	NewJSONResponse().Body(checkJSON{Duplicate: len(matches) > 0, Matches: toMatchesJSON(matches)}).Write(w)
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	month, ok := s.month(w, r)
	if !ok {
		return
	}
	settlements, err := s.household.Settlements(r.Context(), r.PathValue("group"), month.Year, month.Month)
	if err != nil {
		writeServiceError(w, r, log.OpList, err, nil)
		return
	}
	out := make([]settlementJSON, len(settlements))
	for i, st := range settlements {
		out[i] = toSettlementJSON(st)
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	st, err := req.toSettlement()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	id, err := s.household.AddSettlement(r.Context(), r.PathValue("group"), st)
	if err != nil {
		writeServiceError(w, r, log.OpSettle, err, nil)
		return
	}
	createdResponse(w, r, id)
}

// handleDeleteRecord removes an expense, income or settlement. The optional
// date query parameter names the record's date for the change event.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	kind, ok := recordKinds[r.PathValue("kind")]
	if !ok {
		NotFoundError("unknown record collection").Write(w)
		return
	}
	var date core.Date
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := core.ParseDate(raw)
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		date = parsed
	}

	if err := s.household.DeleteRecord(r.Context(), r.PathValue("group"), kind, r.PathValue("id"), date); err != nil {
		writeServiceError(w, r, log.OpDelete, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
