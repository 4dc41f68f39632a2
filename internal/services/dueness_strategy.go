package services

import (
	"fmt"
	"time"

	"delat/internal/core"
)

// DuenessChecker decides when the next occurrence of a repeating record
// falls. Each repeat policy has its own checker.
type DuenessChecker interface {
	// Next returns the first occurrence after last for a series that
	// started on start.
	Next(last, start core.Date) core.Date
}

// MonthlyChecker repeats on the start day of each month, clamped to the
// month's last day.
type MonthlyChecker struct{}

func (MonthlyChecker) Next(last, start core.Date) core.Date {
	year, month := last.Year(), last.Month()+1
	if month > time.December {
		year, month = year+1, time.January
	}
	return core.NewDate(year, month, clampDay(year, month, start.Day()))
}

// YearlyChecker repeats on the start month and day of each year.
type YearlyChecker struct{}

func (YearlyChecker) Next(last, start core.Date) core.Date {
	year := last.Year() + 1
	return core.NewDate(year, start.Month(), clampDay(year, start.Month(), start.Day()))
}

// IsDue reports whether the occurrence following last is on or before now.
func IsDue(c DuenessChecker, last, start core.Date, now time.Time) bool {
	return !c.Next(last, start).After(now)
}

var duenessStrategies = map[core.RepeatPolicy]DuenessChecker{
	core.RepeatMonthly: MonthlyChecker{},
	core.RepeatYearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a repeat policy.
func GetDuenessChecker(policy core.RepeatPolicy) (DuenessChecker, error) {
	checker, ok := duenessStrategies[policy]
	if !ok {
		return nil, fmt.Errorf("no schedule for repeat policy %q", policy)
	}
	return checker, nil
}

func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}
