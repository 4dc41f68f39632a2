// Package balance computes per-member balances that equalize the household's
// net financial result (income received minus expenses paid) across members.
package balance

import (
	"math"

	"delat/internal/core"
)

// Balance is one member's position for a snapshot.
type Balance struct {
	MemberID  string
	Name      string
	Income    float64 // included incomes received, major units
	Expenses  float64 // expenses paid, major units
	ActualNet float64 // Income - Expenses
	TargetNet float64 // household net / member count
	Balance   float64 // Positive = should receive money, Negative = should pay
}

// Totals are the household aggregates behind a snapshot.
type Totals struct {
	TotalIncome        float64
	TotalExpenses      float64
	TotalHouseholdNet  float64
	TargetNetPerPerson float64
}

// Snapshot bundles member balances with the household totals.
type Snapshot struct {
	Balances []Balance
	Totals   Totals
}

// Compute returns one balance per member, in member order.
func Compute(expenses []core.Expense, members []core.Member, settlements []core.Settlement, incomes []core.Income) []Balance {
	return ComputeSnapshot(expenses, members, settlements, incomes).Balances
}

// ComputeSnapshot computes balances for already period-filtered records.
//
// Algorithm:
//   - Each member accumulates included income received and expenses paid
//   - The household net (total income - total expenses) is split evenly
//   - balance = target net - actual net
//   - Each settlement shifts the payer by +amount and the receiver by -amount
//
// Explicit expense splits are not consulted: the balance always equalizes the
// whole period's net result. Amounts that are negative or non-finite count as
// zero. Records that reference someone outside members are ignored, as are
// settlements between a member and themself.
func ComputeSnapshot(expenses []core.Expense, members []core.Member, settlements []core.Settlement, incomes []core.Income) Snapshot {
	if len(members) == 0 {
		return Snapshot{Balances: []Balance{}}
	}

	balances := make([]Balance, len(members))
	index := make(map[string]int, len(members))
	for i, m := range members {
		balances[i] = Balance{MemberID: m.ID, Name: m.Name}
		if _, dup := index[m.ID]; !dup {
			index[m.ID] = i
		}
	}

	for _, inc := range incomes {
		if !inc.IncludedInSplit {
			continue
		}
		if i, ok := index[inc.RecipientID]; ok {
			balances[i].Income += inc.Major()
		}
	}
	for _, e := range expenses {
		if i, ok := index[e.PayerID]; ok {
			balances[i].Expenses += e.Major()
		}
	}

	var totals Totals
	for _, b := range balances {
		totals.TotalIncome += b.Income
		totals.TotalExpenses += b.Expenses
	}
	totals.TotalHouseholdNet = totals.TotalIncome - totals.TotalExpenses
	totals.TargetNetPerPerson = totals.TotalHouseholdNet / float64(len(members))

	for i := range balances {
		b := &balances[i]
		b.ActualNet = b.Income - b.Expenses
		b.TargetNet = totals.TargetNetPerPerson
		b.Balance = b.TargetNet - b.ActualNet
	}

	applySettlements(balances, index, settlements)

	return Snapshot{Balances: balances, Totals: totals}
}

func applySettlements(balances []Balance, index map[string]int, settlements []core.Settlement) {
	for _, s := range settlements {
		if !core.IsValidMajor(s.Amount) || s.Amount == 0 || s.FromID == s.ToID {
			continue
		}
		from, okFrom := index[s.FromID]
		to, okTo := index[s.ToID]
		if !okFrom || !okTo {
			continue
		}
		// The payer has already paid, so what they owe shrinks.
		balances[from].Balance += s.Amount
		balances[to].Balance -= s.Amount
	}
}

// Sum adds up the balances; it is zero up to floating-point error.
func Sum(balances []Balance) float64 {
	var sum float64
	for _, b := range balances {
		sum += b.Balance
	}
	return sum
}

// Settled reports whether every balance is within tolerance of zero.
func Settled(balances []Balance, tolerance float64) bool {
	for _, b := range balances {
		if math.Abs(b.Balance) > tolerance {
			return false
		}
	}
	return true
}
