package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"delat/internal/core"
	"delat/internal/storage"
)

func seed(t *testing.T, s *Store) (core.Group, core.Member, core.Member) {
	t.Helper()
	ctx := context.Background()
	g, err := s.CreateGroup(ctx, " Hemma ")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	sanna, err := s.AddMember(ctx, g.ID, "Sanna")
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	isak, err := s.AddMember(ctx, g.ID, "Isak")
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	return g, sanna, isak
}

func TestMemoryStore_GroupsAndMembers(t *testing.T) {
	s := New()
	ctx := context.Background()
	g, sanna, isak := seed(t, s)

	got, err := s.GetGroup(ctx, g.ID)
	if err != nil || got.Name != "Hemma" {
		t.Fatalf("GetGroup = %+v, %v", got, err)
	}
	members, err := s.ListMembers(ctx, g.ID)
	if err != nil || len(members) != 2 || members[0] != sanna || members[1] != isak {
		t.Fatalf("ListMembers = %+v, %v", members, err)
	}

	members[0].Name = "changed"
	again, _ := s.ListMembers(ctx, g.ID)
	if again[0].Name != "Sanna" {
		t.Error("ListMembers must return a copy")
	}

	if _, err := s.GetGroup(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetGroup(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.AddMember(ctx, "missing", "Ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("AddMember(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestMemoryStore_ExpensesOrderedAndPeriodBounded(t *testing.T) {
	s := New()
	ctx := context.Background()
	g, sanna, isak := seed(t, s)

	split := map[string]float64{sanna.ID: 50, isak.ID: 50}
	late, _ := s.CreateExpense(ctx, core.Expense{GroupID: g.ID, Amount: 100, PayerID: sanna.ID, Date: core.NewDate(2025, time.March, 20), Split: split})
	early, _ := s.CreateExpense(ctx, core.Expense{GroupID: g.ID, Amount: 40, PayerID: isak.ID, Date: core.NewDate(2025, time.March, 2)})
	_, _ = s.CreateExpense(ctx, core.Expense{GroupID: g.ID, Amount: 12000, PayerID: isak.ID, Date: core.NewDate(2025, time.April, 1), Repeat: core.RepeatMonthly})
	_, _ = s.CreateExpense(ctx, core.Expense{GroupID: "other", Amount: 1, PayerID: "x", Date: core.NewDate(2025, time.March, 5)})

	split[sanna.ID] = 99
	march, err := s.ListExpenses(ctx, g.ID, core.MonthPeriod(2025, time.March))
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(march) != 2 || march[0].ID != early || march[1].ID != late {
		t.Fatalf("march = %+v, want early then late", march)
	}
	if march[1].Split[sanna.ID] != 50 {
		t.Errorf("stored split changed with the caller's map: %v", march[1].Split)
	}
	if march[0].Repeat != core.RepeatNone {
		t.Errorf("Repeat = %q, want none by default", march[0].Repeat)
	}

	all, _ := s.ListExpenses(ctx, g.ID, core.Period{})
	if len(all) != 3 {
		t.Errorf("open period listed %d expenses, want 3", len(all))
	}
	from, _ := s.ListExpenses(ctx, g.ID, core.Period{From: core.NewDate(2025, time.March, 15)})
	if len(from) != 2 {
		t.Errorf("open-ended period listed %d expenses, want 2", len(from))
	}

	recurring, _ := s.ListRecurringExpenses(ctx)
	if len(recurring) != 1 || recurring[0].Repeat != core.RepeatMonthly {
		t.Errorf("recurring = %+v", recurring)
	}

	if err := s.DeleteExpense(ctx, "other", early); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("delete from other group error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteExpense(ctx, g.ID, early); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if err := s.DeleteExpense(ctx, g.ID, early); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_IncomeOccurrences(t *testing.T) {
	s := New()
	ctx := context.Background()
	g, _, isak := seed(t, s)

	salary := core.Income{GroupID: g.ID, AmountCents: 3200000, RecipientID: isak.ID, Type: core.IncomeSalary,
		Date: core.NewDate(2025, time.January, 25), Repeat: core.RepeatMonthly, IncludedInSplit: true}
	salaryID, err := s.CreateIncome(ctx, salary)
	if err != nil {
		t.Fatalf("CreateIncome: %v", err)
	}

	if _, ok, _ := s.LastIncomeOccurrence(ctx, salaryID); ok {
		t.Fatal("no occurrence generated yet")
	}
	for _, month := range []time.Month{time.March, time.February} {
		occ := salary
		occ.Repeat = core.RepeatNone
		occ.SourceID = salaryID
		occ.Date = core.NewDate(2025, month, 25)
		if _, err := s.CreateIncome(ctx, occ); err != nil {
			t.Fatalf("CreateIncome(occurrence): %v", err)
		}
	}

	last, ok, err := s.LastIncomeOccurrence(ctx, salaryID)
	if err != nil || !ok || !last.SameDay(core.NewDate(2025, time.March, 25)) {
		t.Errorf("LastIncomeOccurrence = %s, %v, %v", last, ok, err)
	}
	if _, ok, _ := s.LastExpenseOccurrence(ctx, salaryID); ok {
		t.Error("income occurrences must not count as expense occurrences")
	}
	recurring, _ := s.ListRecurringIncomes(ctx)
	if len(recurring) != 1 || recurring[0].ID != salaryID {
		t.Errorf("recurring = %+v", recurring)
	}
	if err := s.DeleteIncome(ctx, g.ID, salaryID); err != nil {
		t.Errorf("DeleteIncome: %v", err)
	}
}

func TestMemoryStore_Settlements(t *testing.T) {
	s := New()
	ctx := context.Background()
	g, sanna, isak := seed(t, s)

	id, err := s.CreateSettlement(ctx, core.Settlement{GroupID: g.ID, FromID: isak.ID, ToID: sanna.ID, Amount: 10196,
		Date: core.NewDate(2025, time.March, 31), MonthLabel: "March 2025"})
	if err != nil {
		t.Fatalf("CreateSettlement: %v", err)
	}
	got, _ := s.ListSettlements(ctx, g.ID, core.MonthPeriod(2025, time.March))
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("settlements = %+v", got)
	}
	if none, _ := s.ListSettlements(ctx, g.ID, core.MonthPeriod(2025, time.April)); len(none) != 0 {
		t.Errorf("april settlements = %+v", none)
	}
	if err := s.DeleteSettlement(ctx, g.ID, id); err != nil {
		t.Fatalf("DeleteSettlement: %v", err)
	}
	if err := s.DeleteSettlement(ctx, g.ID, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}
