package http

import (
	"delat/internal/balance"
	"delat/internal/core"
	"delat/internal/dedup"
	"delat/internal/incomesplit"
	"delat/internal/services"
)

type groupJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type memberJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createdJSON struct {
	ID string `json:"id"`
}

type expenseJSON struct {
	ID          string             `json:"id"`
	Amount      float64            `json:"amount"`
	PayerID     string             `json:"payer_id"`
	Category    string             `json:"category"`
	Description string             `json:"description"`
	Date        string             `json:"date"`
	Split       map[string]float64 `json:"split,omitempty"`
	Repeat      core.RepeatPolicy  `json:"repeat"`
	SourceID    string             `json:"source_id,omitempty"`
}

type incomeJSON struct {
	ID              string            `json:"id"`
	AmountCents     int64             `json:"amount_cents"`
	Amount          float64           `json:"amount"`
	RecipientID     string            `json:"recipient_id"`
	Type            core.IncomeType   `json:"type"`
	Note            string            `json:"note,omitempty"`
	Date            string            `json:"date"`
	Repeat          core.RepeatPolicy `json:"repeat"`
	IncludedInSplit bool              `json:"included_in_split"`
	SourceID        string            `json:"source_id,omitempty"`
}

type settlementJSON struct {
	ID         string  `json:"id"`
	FromID     string  `json:"from_id"`
	ToID       string  `json:"to_id"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date"`
	MonthLabel string  `json:"month_label"`
}

type matchJSON struct {
	ID       string   `json:"id"`
	Amount   float64  `json:"amount"`
	Date     string   `json:"date"`
	Category string   `json:"category"`
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons"`
}

type checkJSON struct {
	Duplicate bool        `json:"duplicate"`
	Matches   []matchJSON `json:"matches"`
}

type balanceJSON struct {
	MemberID  string  `json:"member_id"`
	Name      string  `json:"name"`
	Income    float64 `json:"income"`
	Expenses  float64 `json:"expenses"`
	ActualNet float64 `json:"actual_net"`
	TargetNet float64 `json:"target_net"`
	Balance   float64 `json:"balance"`
}

type transferJSON struct {
	FromID string  `json:"from_id"`
	ToID   string  `json:"to_id"`
	Amount float64 `json:"amount"`
}

type totalsJSON struct {
	TotalIncome        float64 `json:"total_income"`
	TotalExpenses      float64 `json:"total_expenses"`
	TotalHouseholdNet  float64 `json:"total_household_net"`
	TargetNetPerPerson float64 `json:"target_net_per_person"`
}

type snapshotJSON struct {
	GroupID   string         `json:"group_id"`
	Year      int            `json:"year"`
	Month     int            `json:"month"`
	Label     string         `json:"label"`
	Settled   bool           `json:"settled"`
	Totals    totalsJSON     `json:"totals"`
	Balances  []balanceJSON  `json:"balances"`
	Transfers []transferJSON `json:"transfers"`
}

// incomeSettlementJSON reports minor units; the transfer is absent when no
// payment is needed.
type incomeSettlementJSON struct {
	Year          int                `json:"year"`
	Month         int                `json:"month"`
	PersonA       string             `json:"person_a"`
	PersonB       string             `json:"person_b"`
	PersonAIncome int64              `json:"person_a_income"`
	PersonBIncome int64              `json:"person_b_income"`
	ExcludedTotal int64              `json:"excluded_total"`
	TotalIncome   int64              `json:"total_income"`
	ShareA        int64              `json:"share_a"`
	ShareB        int64              `json:"share_b"`
	BalanceA      int64              `json:"balance_a"`
	BalanceB      int64              `json:"balance_b"`
	Transfer      *centsTransferJSON `json:"transfer,omitempty"`
}

type centsTransferJSON struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func toMembersJSON(members []core.Member) []memberJSON {
	out := make([]memberJSON, len(members))
	for i, m := range members {
		out[i] = memberJSON{ID: m.ID, Name: m.Name}
	}
	return out
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:          e.ID,
		Amount:      e.Amount,
		PayerID:     e.PayerID,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date.String(),
		Split:       e.Split,
		Repeat:      e.Repeat,
		SourceID:    e.SourceID,
	}
}

func toIncomeJSON(inc core.Income) incomeJSON {
	return incomeJSON{
		ID:              inc.ID,
		AmountCents:     inc.AmountCents,
		Amount:          inc.Major(),
		RecipientID:     inc.RecipientID,
		Type:            inc.Type,
		Note:            inc.Note,
		Date:            inc.Date.String(),
		Repeat:          inc.Repeat,
		IncludedInSplit: inc.IncludedInSplit,
		SourceID:        inc.SourceID,
	}
}

func toSettlementJSON(s core.Settlement) settlementJSON {
	return settlementJSON{
		ID:         s.ID,
		FromID:     s.FromID,
		ToID:       s.ToID,
		Amount:     s.Amount,
		Date:       s.Date.String(),
		MonthLabel: s.MonthLabel,
	}
}

func toMatchesJSON(matches []dedup.Match) []matchJSON {
	out := make([]matchJSON, len(matches))
	for i, m := range matches {
		out[i] = matchJSON{
			ID:       m.Record.ID,
			Amount:   m.Record.Amount,
			Date:     m.Record.Date.String(),
			Category: m.Record.Category,
			Text:     m.Record.Text,
			Score:    m.Score,
			Reasons:  m.Reasons,
		}
	}
	return out
}

func toSnapshotJSON(s services.Snapshot) snapshotJSON {
	out := snapshotJSON{
		GroupID: s.GroupID,
		Year:    s.Year,
		Month:   int(s.Month),
		Label:   s.Label,
		Settled: s.Settled,
		Totals: totalsJSON{
			TotalIncome:        s.Totals.TotalIncome,
			TotalExpenses:      s.Totals.TotalExpenses,
			TotalHouseholdNet:  s.Totals.TotalHouseholdNet,
			TargetNetPerPerson: s.Totals.TargetNetPerPerson,
		},
		Balances:  make([]balanceJSON, len(s.Balances)),
		Transfers: make([]transferJSON, len(s.Transfers)),
	}
	for i, b := range s.Balances {
		out.Balances[i] = toBalanceJSON(b)
	}
	for i, t := range s.Transfers {
		out.Transfers[i] = transferJSON{FromID: t.FromID, ToID: t.ToID, Amount: t.Amount}
	}
	return out
}

func toBalanceJSON(b balance.Balance) balanceJSON {
	return balanceJSON{
		MemberID:  b.MemberID,
		Name:      b.Name,
		Income:    b.Income,
		Expenses:  b.Expenses,
		ActualNet: b.ActualNet,
		TargetNet: b.TargetNet,
		Balance:   b.Balance,
	}
}

func toIncomeSettlementJSON(r incomesplit.Result) incomeSettlementJSON {
	out := incomeSettlementJSON{
		Year:          r.Year,
		Month:         int(r.Month),
		PersonA:       r.PersonA,
		PersonB:       r.PersonB,
		PersonAIncome: r.PersonAIncome,
		PersonBIncome: r.PersonBIncome,
		ExcludedTotal: r.ExcludedTotal,
		TotalIncome:   r.TotalIncome,
		ShareA:        r.ShareA,
		ShareB:        r.ShareB,
		BalanceA:      r.BalanceA,
		BalanceB:      r.BalanceB,
	}
	if r.Transfer.Amount > 0 {
		out.Transfer = &centsTransferJSON{From: r.Transfer.From, To: r.Transfer.To, Amount: r.Transfer.Amount}
	}
	return out
}
