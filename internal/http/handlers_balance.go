package http

import (
	"net/http"
	"strings"

	"delat/internal/log"
)

// handleBalances returns the month's balance snapshot for the group.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	month, ok := s.month(w, r)
	if !ok {
		return
	}

	snap, err := s.household.BalanceSnapshot(r.Context(), r.PathValue("group"), month.Year, month.Month)
	if err != nil {
		writeServiceError(w, r, log.OpBalance, err, nil)
		return
	}
	NewJSONResponse().Body(toSnapshotJSON(snap)).Write(w)
}

// handleIncomeSettlement splits the month's included income between the
// members named by the a and b query parameters.
func (s *Server) handleIncomeSettlement(w http.ResponseWriter, r *http.Request) {
	month, ok := s.month(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	personA := strings.TrimSpace(query.Get("a"))
	personB := strings.TrimSpace(query.Get("b"))
	if personA == "" || personB == "" {
		BadRequestError("query parameters a and b are required").Write(w)
		return
	}

	result, err := s.household.IncomeOverview(r.Context(), r.PathValue("group"), personA, personB, month.Year, month.Month)
	if err != nil {
		writeServiceError(w, r, log.OpSettle, err, nil)
		return
	}
	NewJSONResponse().Body(toIncomeSettlementJSON(result)).Write(w)
}
