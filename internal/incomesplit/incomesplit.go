// Package incomesplit computes the monthly 50/50 income split between two
// members. All arithmetic is done in whole minor units so that results are
// reproducible to the öre.
//
// It is a two-party projection. Households with more members
// use the net-result equalization in package balance, which also accounts
// for expenses.
package incomesplit

import (
	"time"

	"delat/internal/core"
)

// Transfer is the payment that evens out the month. Amount is zero when no
// payment is needed, in which case From and To are empty.
type Transfer struct {
	From   string
	To     string
	Amount int64
}

// Result is the month's split, in minor units.
type Result struct {
	Year    int
	Month   time.Month
	PersonA string
	PersonB string

	PersonAIncome int64
	PersonBIncome int64
	// ExcludedTotal sums the month's incomes that are not part of the split.
	// It is reported for display and never affects the shares.
	ExcludedTotal int64
	TotalIncome   int64

	ShareA   int64
	ShareB   int64
	BalanceA int64 // PersonAIncome - ShareA
	BalanceB int64 // PersonBIncome - ShareB

	Transfer Transfer
}

// Compute splits the included incomes of personA and personB for the given
// month evenly between them.
//
// An odd total leaves one öre that cannot be halved; it goes to whoever earned
// more, and to personA when both earned the same.
func Compute(incomes []core.Income, personA, personB string, year int, month time.Month) Result {
	res := Result{Year: year, Month: month, PersonA: personA, PersonB: personB}

	for _, inc := range incomes {
		if !inc.Date.InMonth(year, month) {
			continue
		}
		amount := inc.AmountCents
		if amount < 0 {
			amount = 0
		}
		if !inc.IncludedInSplit {
			res.ExcludedTotal += amount
			continue
		}
		switch inc.RecipientID {
		case personA:
			res.PersonAIncome += amount
		case personB:
			res.PersonBIncome += amount
		}
	}

	res.TotalIncome = res.PersonAIncome + res.PersonBIncome
	res.ShareA, res.ShareB = shares(res.TotalIncome, res.PersonAIncome, res.PersonBIncome)
	res.BalanceA = res.PersonAIncome - res.ShareA
	res.BalanceB = res.PersonBIncome - res.ShareB

	switch {
	case res.BalanceA > 0:
		res.Transfer = Transfer{From: personA, To: personB, Amount: res.BalanceA}
	case res.BalanceA < 0:
		res.Transfer = Transfer{From: personB, To: personA, Amount: -res.BalanceA}
	}
	return res
}

func shares(total, incomeA, incomeB int64) (shareA, shareB int64) {
	floor := total / 2
	if total%2 == 0 {
		return floor, floor
	}
	ceil := floor + 1
	if incomeB > incomeA {
		return floor, ceil
	}
	// Equal earnings cannot produce an odd total; A wins the tie regardless.
	return ceil, floor
}
