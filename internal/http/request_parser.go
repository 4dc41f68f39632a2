package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"delat/internal/core"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid JSON body")

// MonthParams holds a calendar month taken from query parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams reads year and month from the query, defaulting each to
// now's. Present but malformed values are an error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return MonthParams{}, fmt.Errorf("invalid year %q", v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, fmt.Errorf("invalid month %q", v)
		}
		params.Month = time.Month(m)
	}
	return params, nil
}

// decodeJSON reads a single JSON object into v. Numbers are kept as
// json.Number so amounts keep their decimal text.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadBody)
	}
	return nil
}

// amountText returns the decimal text of a JSON amount given as a string or
// a number.
func amountText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type nameRequest struct {
	Name string `json:"name"`
}

type expenseRequest struct {
	// ID excludes a stored expense from a duplicate check of its own edit.
	ID          string         `json:"id,omitempty"`
	Amount      any            `json:"amount"`
	PayerID     string         `json:"payer_id"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Date        string         `json:"date"`
	Split       map[string]any `json:"split,omitempty"`
	Repeat      string         `json:"repeat,omitempty"`
	Confirm     bool           `json:"confirm,omitempty"`
}

// toExpense builds the expense to store. Amounts must be positive decimals.
func (req expenseRequest) toExpense() (core.Expense, error) {
	amount, err := core.ParseDecimalToMajor(amountText(req.Amount))
	if err != nil {
		return core.Expense{}, err
	}
	e, err := req.base()
	if err != nil {
		return core.Expense{}, err
	}
	e.Amount = amount

	if len(req.Split) > 0 {
		e.Split = make(map[string]float64, len(req.Split))
		for memberID, raw := range req.Split {
			part, err := core.ParseDecimalToMajor(amountText(raw))
			if err != nil {
				return core.Expense{}, fmt.Errorf("split for %s: %w", memberID, core.ErrInvalidSplit)
			}
			e.Split[sanitizeInput(memberID)] = part
		}
	}
	return e, nil
}

// toCandidate builds an expense for a duplicate check. The amount is read
// leniently so a half-filled form can still be checked.
func (req expenseRequest) toCandidate() (core.Expense, error) {
	e, err := req.base()
	if err != nil {
		return core.Expense{}, err
	}
	e.ID = sanitizeInput(req.ID)
	e.Amount = core.ParseAmount(req.Amount)
	return e, nil
}

func (req expenseRequest) base() (core.Expense, error) {
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		PayerID:     sanitizeInput(req.PayerID),
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
		Date:        date,
		Repeat:      core.RepeatPolicy(strings.ToLower(sanitizeInput(req.Repeat))),
	}, nil
}

type incomeRequest struct {
	ID              string `json:"id,omitempty"`
	Amount          any    `json:"amount"`
	RecipientID     string `json:"recipient_id"`
	Type            string `json:"type"`
	Note            string `json:"note,omitempty"`
	Date            string `json:"date"`
	Repeat          string `json:"repeat,omitempty"`
	IncludedInSplit *bool  `json:"included_in_split,omitempty"`
	Confirm         bool   `json:"confirm,omitempty"`
}

// toIncome builds the income to store. The amount is given in major units
// and stored in öre; included_in_split defaults to true.
func (req incomeRequest) toIncome() (core.Income, error) {
	cents, err := core.ParseDecimalToCents(amountText(req.Amount))
	if err != nil {
		return core.Income{}, err
	}
	inc, err := req.base()
	if err != nil {
		return core.Income{}, err
	}
	inc.AmountCents = cents
	return inc, nil
}

func (req incomeRequest) toCandidate() (core.Income, error) {
	inc, err := req.base()
	if err != nil {
		return core.Income{}, err
	}
	inc.ID = sanitizeInput(req.ID)
	inc.AmountCents = core.MajorToMinor(core.ParseAmount(req.Amount))
	return inc, nil
}

func (req incomeRequest) base() (core.Income, error) {
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Income{}, err
	}
	included := true
	if req.IncludedInSplit != nil {
		included = *req.IncludedInSplit
	}
	incomeType := core.IncomeType(strings.ToLower(sanitizeInput(req.Type)))
	if incomeType == "" {
		incomeType = core.IncomeOther
	}
	return core.Income{
		RecipientID:     sanitizeInput(req.RecipientID),
		Type:            incomeType,
		Note:            sanitizeInput(req.Note),
		Date:            date,
		Repeat:          core.RepeatPolicy(strings.ToLower(sanitizeInput(req.Repeat))),
		IncludedInSplit: included,
	}, nil
}

type settlementRequest struct {
	FromID     string `json:"from_id"`
	ToID       string `json:"to_id"`
	Amount     any    `json:"amount"`
	Date       string `json:"date"`
	MonthLabel string `json:"month_label,omitempty"`
}

func (req settlementRequest) toSettlement() (core.Settlement, error) {
	amount, err := core.ParseDecimalToMajor(amountText(req.Amount))
	if err != nil {
		return core.Settlement{}, err
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Settlement{}, err
	}
	return core.Settlement{
		FromID:     sanitizeInput(req.FromID),
		ToID:       sanitizeInput(req.ToID),
		Amount:     amount,
		Date:       date,
		MonthLabel: sanitizeInput(req.MonthLabel),
	}, nil
}
