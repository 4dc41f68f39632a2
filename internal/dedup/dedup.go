// Package dedup flags records that are likely to duplicate one the household
// has already logged. Scoring is a sum of independent weighted signals and is
// advisory: callers show the matches and let the user decide.
package dedup

import (
	"math"
	"sort"

	"delat/internal/core"
)

const (
	// Threshold is the score from which a record counts as a potential duplicate.
	Threshold = 0.5
	// MaxMatches caps the number of matches returned.
	MaxMatches = 3

	nearAmountRatio = 0.05
	nearDateDays    = 3
)

// Kind selects which field names and weights apply.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Reasons attached to a match, in the order signals are evaluated.
const (
	ReasonSameAmount    = "Same amount"
	ReasonSimilarAmount = "Similar amount"
	ReasonSameDate      = "Same date"
	ReasonNearDate      = "Within 3 days"
	ReasonSameCategory  = "Same category"
	ReasonSameType      = "Same income type"
	ReasonSameText      = "Matching description"
	ReasonSimilarText   = "Similar description"
	ReasonSameNote      = "Matching note"
	ReasonSimilarNote   = "Similar note"
)

// Record is the kind-neutral view of an expense or income. Amount is in the
// unit the record is stored in: major units for expenses, minor for incomes.
type Record struct {
	ID       string
	Amount   float64
	Date     core.Date
	Category string
	Text     string
}

// Match is an existing record that resembles the candidate.
type Match struct {
	Record  Record
	Score   float64
	Reasons []string
}

type profile struct {
	exactAmountDelta float64
	categoryWeight   float64
	strongTextWeight float64
	categoryReason   string
	strongTextReason string
	weakTextReason   string
}

const (
	weightExactAmount = 0.4
	weightNearAmount  = 0.2
	weightExactDate   = 0.3
	weightNearDate    = 0.15
	weightWeakText    = 0.10
)

var profiles = map[Kind]profile{
	KindExpense: {
		exactAmountDelta: 0.01,
		categoryWeight:   0.15,
		strongTextWeight: 0.25,
		categoryReason:   ReasonSameCategory,
		strongTextReason: ReasonSameText,
		weakTextReason:   ReasonSimilarText,
	},
	KindIncome: {
		exactAmountDelta: 1,
		categoryWeight:   0.2,
		strongTextWeight: 0.2,
		categoryReason:   ReasonSameType,
		strongTextReason: ReasonSameNote,
		weakTextReason:   ReasonSimilarNote,
	},
}

// FromExpense maps an expense onto a Record.
func FromExpense(e core.Expense) Record {
	return Record{ID: e.ID, Amount: e.Amount, Date: e.Date, Category: e.Category, Text: e.Description}
}

// FromIncome maps an income onto a Record, keeping the amount in minor units.
func FromIncome(i core.Income) Record {
	return Record{ID: i.ID, Amount: float64(i.AmountCents), Date: i.Date, Category: string(i.Type), Text: i.Note}
}

// FromExpenses maps a slice of expenses.
func FromExpenses(es []core.Expense) []Record {
	out := make([]Record, len(es))
	for i, e := range es {
		out[i] = FromExpense(e)
	}
	return out
}

// FromIncomes maps a slice of incomes.
func FromIncomes(is []core.Income) []Record {
	out := make([]Record, len(is))
	for i, inc := range is {
		out[i] = FromIncome(inc)
	}
	return out
}

// Score ranks existing records by how much they resemble candidate. Only
// records scoring at least Threshold are returned, highest first, at most
// MaxMatches of them. An unknown kind is scored as an expense.
func Score(candidate Record, existing []Record, kind Kind) []Match {
	p, ok := profiles[kind]
	if !ok {
		p = profiles[KindExpense]
	}

	var matches []Match
	for _, rec := range existing {
		m := score(candidate, rec, p)
		if m.Score >= Threshold {
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > MaxMatches {
		matches = matches[:MaxMatches]
	}
	return matches
}

func score(candidate, rec Record, p profile) Match {
	m := Match{Record: rec}
	add := func(weight float64, reason string) {
		m.Score += weight
		m.Reasons = append(m.Reasons, reason)
	}

	a, b := core.NormalizeMajor(candidate.Amount), core.NormalizeMajor(rec.Amount)
	diff := math.Abs(a - b)
	switch {
	case diff < p.exactAmountDelta:
		add(weightExactAmount, ReasonSameAmount)
	case relativeDiff(diff, a, b) < nearAmountRatio:
		add(weightNearAmount, ReasonSimilarAmount)
	}

	if !candidate.Date.IsZero() && !rec.Date.IsZero() {
		switch {
		case candidate.Date.SameDay(rec.Date):
			add(weightExactDate, ReasonSameDate)
		case candidate.Date.DaysApart(rec.Date) <= nearDateDays:
			add(weightNearDate, ReasonNearDate)
		}
	}

	if candidate.Category != "" && candidate.Category == rec.Category {
		add(p.categoryWeight, p.categoryReason)
	}

	switch sim := TextSimilarity(candidate.Text, rec.Text); {
	case sim >= 0.8:
		add(p.strongTextWeight, p.strongTextReason)
	case sim >= 0.5:
		add(weightWeakText, p.weakTextReason)
	}

	// Round away summation noise before comparing with Threshold.
	m.Score = math.Round(m.Score*1000) / 1000
	return m
}

// relativeDiff is the difference relative to the larger of both amounts.
func relativeDiff(diff, a, b float64) float64 {
	larger := math.Max(a, b)
	if larger == 0 {
		return math.Inf(1)
	}
	return diff / larger
}
