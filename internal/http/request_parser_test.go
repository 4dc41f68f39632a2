package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"delat/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth time.Month
		wantErr   bool
	}{
		{name: "both values provided", query: url.Values{"year": {"2024"}, "month": {"12"}}, wantYear: 2024, wantMonth: time.December},
		{name: "only year", query: url.Values{"year": {"2023"}}, wantYear: 2023, wantMonth: time.March},
		{name: "only month", query: url.Values{"month": {"5"}}, wantYear: 2025, wantMonth: time.May},
		{name: "empty query uses now", query: url.Values{}, wantYear: 2025, wantMonth: time.March},
		{name: "whitespace is trimmed", query: url.Values{"month": {" 7 "}}, wantYear: 2025, wantMonth: time.July},
		{name: "month zero", query: url.Values{"month": {"0"}}, wantErr: true},
		{name: "month thirteen", query: url.Values{"month": {"13"}}, wantErr: true},
		{name: "non numeric month", query: url.Values{"month": {"abc"}}, wantErr: true},
		{name: "non numeric year", query: url.Values{"year": {"20x5"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMonthParams() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMonthParams() error = %v", err)
			}
			if got.Year != tt.wantYear || got.Month != tt.wantMonth {
				t.Errorf("ParseMonthParams() = %d-%d, want %d-%d", got.Year, got.Month, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"Home"}`, false},
		{"unknown field", `{"name":"Home","owner":"x"}`, true},
		{"trailing object", `{"name":"Home"}{"name":"Away"}`, true},
		{"not json", `name=Home`, true},
		{"empty body", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/groups", strings.NewReader(tt.body))
			var got nameRequest
			err := decodeJSON(httptest.NewRecorder(), req, &got)
			if tt.wantErr {
				if !errors.Is(err, errBadBody) {
					t.Errorf("decodeJSON() error = %v, want errBadBody", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeJSON() error = %v", err)
			}
			if got.Name != "Home" {
				t.Errorf("Name = %q, want %q", got.Name, "Home")
			}
		})
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	body := `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/groups", strings.NewReader(body))

	var got nameRequest
	if err := decodeJSON(httptest.NewRecorder(), req, &got); !errors.Is(err, errBadBody) {
		t.Errorf("decodeJSON() error = %v, want errBadBody", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"  Rent  ", "Rent"},
		{"ICA\x00 Maxi\x07", "ICA Maxi"},
		{"line\none\ttab", "line\none\ttab"},
		{"Café ÅÄÖ", "Café ÅÄÖ"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestExpenseRequest_ToExpense(t *testing.T) {
	req := expenseRequest{
		Amount:      "1 250,50",
		PayerID:     " m-1 ",
		Category:    "food",
		Description: "Systembolaget",
		Date:        "2025-03-08",
		Split:       map[string]any{"m-1": "625.25", "m-2": float64(625.25)},
		Repeat:      "Monthly",
	}

	e, err := req.toExpense()
	if err != nil {
		t.Fatalf("toExpense() error = %v", err)
	}
	if e.Amount != 1250.50 {
		t.Errorf("Amount = %v, want 1250.5", e.Amount)
	}
	if e.PayerID != "m-1" {
		t.Errorf("PayerID = %q, want m-1", e.PayerID)
	}
	if e.Repeat != core.RepeatMonthly {
		t.Errorf("Repeat = %q, want monthly", e.Repeat)
	}
	if !e.Date.SameDay(core.NewDate(2025, time.March, 8)) {
		t.Errorf("Date = %s, want 2025-03-08", e.Date)
	}
	if e.Split["m-2"] != 625.25 {
		t.Errorf("Split[m-2] = %v, want 625.25", e.Split["m-2"])
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestExpenseRequest_Errors(t *testing.T) {
	base := expenseRequest{Amount: "10", PayerID: "m-1", Category: "food", Description: "Lunch", Date: "2025-03-08"}

	tests := []struct {
		name   string
		mutate func(*expenseRequest)
		want   error
	}{
		{"missing amount", func(r *expenseRequest) { r.Amount = nil }, core.ErrInvalidAmount},
		{"zero amount", func(r *expenseRequest) { r.Amount = "0" }, core.ErrInvalidAmount},
		{"bad date", func(r *expenseRequest) { r.Date = "8 March" }, core.ErrInvalidDate},
		{"bad split", func(r *expenseRequest) { r.Split = map[string]any{"m-1": "lots"} }, core.ErrInvalidSplit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			if _, err := req.toExpense(); !errors.Is(err, tt.want) {
				t.Errorf("toExpense() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExpenseRequest_CandidateIsLenient(t *testing.T) {
	req := expenseRequest{ID: "e-7", Amount: "not yet", Date: "2025-03-08", Description: "ICA"}

	e, err := req.toCandidate()
	if err != nil {
		t.Fatalf("toCandidate() error = %v", err)
	}
	if e.Amount != 0 {
		t.Errorf("Amount = %v, want 0 for an unparsable draft amount", e.Amount)
	}
	if e.ID != "e-7" {
		t.Errorf("ID = %q, want e-7", e.ID)
	}

	req.Date = ""
	if _, err := req.toCandidate(); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("toCandidate() without date error = %v, want ErrInvalidDate", err)
	}
}

func TestIncomeRequest_ToIncome(t *testing.T) {
	excluded := false
	tests := []struct {
		name         string
		req          incomeRequest
		wantCents    int64
		wantType     core.IncomeType
		wantIncluded bool
	}{
		{
			name:         "defaults",
			req:          incomeRequest{Amount: "32000", RecipientID: "m-2", Date: "2025-03-25"},
			wantCents:    3200000,
			wantType:     core.IncomeOther,
			wantIncluded: true,
		},
		{
			name:         "excluded bonus with comma decimals",
			req:          incomeRequest{Amount: "1500,75", RecipientID: "m-2", Type: "Bonus", Date: "2025-03-25", IncludedInSplit: &excluded},
			wantCents:    150075,
			wantType:     core.IncomeBonus,
			wantIncluded: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc, err := tt.req.toIncome()
			if err != nil {
				t.Fatalf("toIncome() error = %v", err)
			}
			if inc.AmountCents != tt.wantCents {
				t.Errorf("AmountCents = %d, want %d", inc.AmountCents, tt.wantCents)
			}
			if inc.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", inc.Type, tt.wantType)
			}
			if inc.IncludedInSplit != tt.wantIncluded {
				t.Errorf("IncludedInSplit = %v, want %v", inc.IncludedInSplit, tt.wantIncluded)
			}
		})
	}

	if _, err := (incomeRequest{Amount: "-1", RecipientID: "m-2", Date: "2025-03-25"}).toIncome(); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative income error = %v, want ErrInvalidAmount", err)
	}
}

func TestSettlementRequest_ToSettlement(t *testing.T) {
	st, err := settlementRequest{FromID: "m-2", ToID: "m-1", Amount: "14196", Date: "2025-03-31"}.toSettlement()
	if err != nil {
		t.Fatalf("toSettlement() error = %v", err)
	}
	if st.Amount != 14196 || st.FromID != "m-2" || st.ToID != "m-1" {
		t.Errorf("toSettlement() = %+v", st)
	}
	if st.MonthLabel != "" {
		t.Errorf("MonthLabel = %q, want empty until the service derives it", st.MonthLabel)
	}

	if _, err := (settlementRequest{FromID: "m-2", ToID: "m-1", Amount: "abc", Date: "2025-03-31"}).toSettlement(); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("bad amount error = %v, want ErrInvalidAmount", err)
	}
}

func TestAmountText(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"12,50", "12,50"},
		{float64(12.5), "12.5"},
		{nil, ""},
		{true, ""},
	}
	for _, tt := range tests {
		if got := amountText(tt.in); got != tt.want {
			t.Errorf("amountText(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
