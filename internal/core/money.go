// Package core provides money parsing and handling utilities.
//
// Expenses and settlements are stored in major units (kronor) while incomes
// are stored in minor units (öre). Everything that folds amounts into an
// aggregate goes through the normalizers below so that a malformed record
// contributes zero instead of poisoning the sum.
package core

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of öre in a krona.
const MinorUnitsPerMajor = 100

var hundred = decimal.NewFromInt(MinorUnitsPerMajor)

// IsValidMajor reports whether v is a finite, non-negative amount.
func IsValidMajor(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// NormalizeMajor passes a major-unit amount through, mapping non-finite and
// negative values to zero.
func NormalizeMajor(v float64) float64 {
	if !IsValidMajor(v) {
		return 0
	}
	return v
}

// MinorToMajor converts minor units to major units. Negative input yields zero.
func MinorToMajor(cents int64) float64 {
	if cents <= 0 {
		return 0
	}
	return float64(cents) / MinorUnitsPerMajor
}

// MajorToMinor converts a major-unit amount to minor units with half-up
// rounding. Invalid amounts yield zero.
func MajorToMinor(v float64) int64 {
	if !IsValidMajor(v) {
		return 0
	}
	return decimal.NewFromFloat(v).Mul(hundred).Round(0).IntPart()
}

// ParseAmount resolves a loosely typed amount from an untyped source into a
// major-unit float. Strings may use a dot or a comma as decimal separator.
// Anything unparsable, non-finite or negative yields zero.
func ParseAmount(raw any) float64 {
	var d decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return NormalizeMajor(v)
	case float32:
		return NormalizeMajor(float64(v))
	case int:
		return NormalizeMajor(float64(v))
	case int64:
		return NormalizeMajor(float64(v))
	case decimal.Decimal:
		d = v
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return 0
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(normalizeDecimalString(v))
		if err != nil {
			return 0
		}
		d = parsed
	default:
		return 0
	}
	if d.IsNegative() {
		return 0
	}
	f, _ := d.Float64()
	return NormalizeMajor(f)
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
//	ParseDecimalToCents("12.344") -> 1234, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = normalizeDecimalString(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsPositive() || cents.GreaterThan(decimal.NewFromInt(math.MaxInt64/2)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// ParseDecimalToMajor parses a positive amount string into major units,
// rounded to whole öre.
func ParseDecimalToMajor(s string) (float64, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return 0, err
	}
	return MinorToMajor(cents), nil
}

// normalizeDecimalString trims whitespace, drops thousands spaces and turns a
// decimal comma into a dot.
func normalizeDecimalString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	return strings.ReplaceAll(s, ",", ".")
}
