package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	RepeatNone    RepeatPolicy = "none"
	RepeatMonthly RepeatPolicy = "monthly"
	RepeatYearly  RepeatPolicy = "yearly"
)

const (
	IncomeSalary            IncomeType = "salary"
	IncomeBonus             IncomeType = "bonus"
	IncomeBenefit           IncomeType = "benefit"
	IncomeGovernmentBenefit IncomeType = "government_benefit"
	IncomeSubsidy           IncomeType = "subsidy"
	IncomeOther             IncomeType = "other"
)

// SplitEpsilon is the tolerance, in major units, between an expense amount
// and the sum of its explicit split.
const SplitEpsilon = 0.01

type (
	RepeatPolicy string
	IncomeType   string

	Date struct {
		time.Time
	}

	// Group is a household sharing costs.
	Group struct {
		ID   string
		Name string
	}

	Member struct {
		ID   string
		Name string
	}

	// Expense is a shared cost. Amount is in major units (kronor).
	Expense struct {
		ID          string
		GroupID     string
		Amount      float64
		PayerID     string
		Category    string
		Description string
		Date        Date
		// Split optionally maps member ID to the part of Amount they carry.
		// It is informational: balances are computed on the household net.
		Split  map[string]float64
		Repeat RepeatPolicy
		// SourceID is set on occurrences generated from a repeating expense.
		SourceID string
	}

	// Income is money received by one member. AmountCents is in minor units (öre).
	Income struct {
		ID              string
		GroupID         string
		AmountCents     int64
		RecipientID     string
		Type            IncomeType
		Note            string
		Date            Date
		Repeat          RepeatPolicy
		IncludedInSplit bool
		SourceID        string
	}

	// Settlement is a completed payment from one member to another, in major units.
	Settlement struct {
		ID         string
		GroupID    string
		FromID     string
		ToID       string
		Amount     float64
		Date       Date
		MonthLabel string
	}

	// Period is an inclusive range of calendar days.
	Period struct {
		From Date
		To   Date
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrMissingMember    = errors.New("missing member reference")
	ErrSameMember       = errors.New("source and destination must differ")
	ErrInvalidSplit     = errors.New("split does not sum to amount")
	ErrInvalidRepeat    = errors.New("invalid repeat policy")
	ErrInvalidType      = errors.New("invalid income type")
	ErrEmptyName        = errors.New("empty name")
	ErrUnknownMember    = errors.New("member does not belong to the group")

	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

var validationErrors = []error{
	ErrInvalidDate, ErrInvalidAmount, ErrEmptyDescription, ErrEmptyCategory,
	ErrMissingMember, ErrSameMember, ErrInvalidSplit, ErrInvalidRepeat,
	ErrInvalidType, ErrEmptyName, ErrUnknownMember, ErrDescriptionTooLong,
}

// IsValidation reports whether err stems from invalid user input.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// SameDay reports whether both dates fall on the same calendar day.
func (d Date) SameDay(o Date) bool {
	y1, m1, d1 := d.Date()
	y2, m2, d2 := o.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DaysApart returns the absolute number of calendar days between d and o.
func (d Date) DaysApart(o Date) int {
	a := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(o.Year(), o.Month(), o.Day(), 0, 0, 0, 0, time.UTC)
	days := int(math.Round(a.Sub(b).Hours() / 24))
	if days < 0 {
		return -days
	}
	return days
}

// InMonth reports whether the date falls in the given calendar month.
func (d Date) InMonth(year int, month time.Month) bool {
	return d.Year() == year && d.Month() == month
}

// MonthPeriod returns the period covering a whole calendar month.
func MonthPeriod(year int, month time.Month) Period {
	first := NewDate(year, month, 1)
	return Period{From: first, To: Date{Time: first.AddDate(0, 1, -1)}}
}

// Around returns the period of days days either side of d.
func Around(d Date, days int) Period {
	return Period{From: Date{Time: d.AddDate(0, 0, -days)}, To: Date{Time: d.AddDate(0, 0, days)}}
}

// Contains reports whether d lies within the period, bounds included.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.From.Time) && !d.After(p.To.Time)
}

// MonthLabel renders a human readable label such as "March 2025".
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", month, year)
}

func (r RepeatPolicy) IsValid() bool {
	switch r {
	case RepeatNone, RepeatMonthly, RepeatYearly:
		return true
	}
	return false
}

func (t IncomeType) IsValid() bool {
	switch t {
	case IncomeSalary, IncomeBonus, IncomeBenefit, IncomeGovernmentBenefit, IncomeSubsidy, IncomeOther:
		return true
	}
	return false
}

// Major returns the expense amount normalized to major units.
func (e Expense) Major() float64 {
	return NormalizeMajor(e.Amount)
}

// SplitTotal sums the explicit split.
func (e Expense) SplitTotal() float64 {
	var sum float64
	for _, v := range e.Split {
		sum += v
	}
	return sum
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !IsValidMajor(e.Amount) || e.Amount == 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.PayerID) == "" {
		return ErrMissingMember
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if e.Repeat != "" && !e.Repeat.IsValid() {
		return ErrInvalidRepeat
	}
	if len(e.Split) > 0 {
		for _, v := range e.Split {
			if !IsValidMajor(v) {
				return ErrInvalidSplit
			}
		}
		if math.Abs(e.SplitTotal()-e.Amount) > SplitEpsilon {
			return ErrInvalidSplit
		}
	}
	return nil
}

// Major returns the income amount converted to major units.
func (i Income) Major() float64 {
	return MinorToMajor(i.AmountCents)
}

func (i Income) Validate() error {
	if err := i.Date.Validate(); err != nil {
		return err
	}
	if i.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(i.RecipientID) == "" {
		return ErrMissingMember
	}
	if !i.Type.IsValid() {
		return ErrInvalidType
	}
	if i.Repeat != "" && i.Repeat != RepeatNone && i.Repeat != RepeatMonthly {
		return ErrInvalidRepeat
	}
	return nil
}

func (s Settlement) Validate() error {
	if err := s.Date.Validate(); err != nil {
		return err
	}
	if !IsValidMajor(s.Amount) || s.Amount == 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(s.FromID) == "" || strings.TrimSpace(s.ToID) == "" {
		return ErrMissingMember
	}
	if s.FromID == s.ToID {
		return ErrSameMember
	}
	return nil
}
