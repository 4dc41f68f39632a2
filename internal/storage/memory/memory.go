// Package memory is a process-local record store with the same semantics as
// the SQLite repository. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"delat/internal/core"
	"delat/internal/storage"
)

type Store struct {
	mu          sync.Mutex
	groups      map[string]core.Group
	members     map[string][]core.Member
	expenses    []core.Expense
	incomes     []core.Income
	settlements []core.Settlement
}

func New() *Store {
	return &Store{
		groups:  make(map[string]core.Group),
		members: make(map[string][]core.Member),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) CreateGroup(_ context.Context, name string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := core.Group{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	s.groups[g.ID] = g
	return g, nil
}

func (s *Store) GetGroup(_ context.Context, id string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return core.Group{}, fmt.Errorf("group %s: %w", id, storage.ErrNotFound)
	}
	return g, nil
}

func (s *Store) AddMember(_ context.Context, groupID, name string) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return core.Member{}, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	m := core.Member{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	s.members[groupID] = append(s.members[groupID], m)
	return m, nil
}

// ListMembers returns the group's members in joining order.
func (s *Store) ListMembers(_ context.Context, groupID string) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.members[groupID]), nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Repeat == "" {
		e.Repeat = core.RepeatNone
	}
	e.Split = maps.Clone(e.Split)
	s.expenses = append(s.expenses, e)
	return e.ID, nil
}

func (s *Store) CreateIncome(_ context.Context, inc core.Income) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.Repeat == "" {
		inc.Repeat = core.RepeatNone
	}
	s.incomes = append(s.incomes, inc)
	return inc.ID, nil
}

func (s *Store) CreateSettlement(_ context.Context, st core.Settlement) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	s.settlements = append(s.settlements, st)
	return st.ID, nil
}

// ListExpenses returns the group's expenses dated within p, oldest first.
// A zero bound leaves that side of the period open.
func (s *Store) ListExpenses(_ context.Context, groupID string, p core.Period) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.GroupID == groupID && within(p, e.Date) {
			e.Split = maps.Clone(e.Split)
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Expense) int { return a.Date.Compare(b.Date.Time) })
	return out, nil
}

func (s *Store) ListIncomes(_ context.Context, groupID string, p core.Period) ([]core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Income
	for _, inc := range s.incomes {
		if inc.GroupID == groupID && within(p, inc.Date) {
			out = append(out, inc)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Income) int { return a.Date.Compare(b.Date.Time) })
	return out, nil
}

func (s *Store) ListSettlements(_ context.Context, groupID string, p core.Period) ([]core.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Settlement
	for _, st := range s.settlements {
		if st.GroupID == groupID && within(p, st.Date) {
			out = append(out, st)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Settlement) int { return a.Date.Compare(b.Date.Time) })
	return out, nil
}

func (s *Store) DeleteExpense(_ context.Context, groupID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remove(&s.expenses, "expense", id, func(e core.Expense) bool { return e.GroupID == groupID && e.ID == id })
}

func (s *Store) DeleteIncome(_ context.Context, groupID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remove(&s.incomes, "income", id, func(inc core.Income) bool { return inc.GroupID == groupID && inc.ID == id })
}

func (s *Store) DeleteSettlement(_ context.Context, groupID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remove(&s.settlements, "settlement", id, func(st core.Settlement) bool { return st.GroupID == groupID && st.ID == id })
}

// ListRecurringExpenses returns every repeating expense that is not itself
// a generated occurrence.
func (s *Store) ListRecurringExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.SourceID == "" && e.Repeat != core.RepeatNone {
			e.Split = maps.Clone(e.Split)
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListRecurringIncomes(_ context.Context) ([]core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Income
	for _, inc := range s.incomes {
		if inc.SourceID == "" && inc.Repeat != core.RepeatNone {
			out = append(out, inc)
		}
	}
	return out, nil
}

// LastExpenseOccurrence returns the latest date generated from sourceID.
func (s *Store) LastExpenseOccurrence(_ context.Context, sourceID string) (core.Date, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return latest(s.expenses, sourceID, func(e core.Expense) (string, core.Date) { return e.SourceID, e.Date })
}

func (s *Store) LastIncomeOccurrence(_ context.Context, sourceID string) (core.Date, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return latest(s.incomes, sourceID, func(inc core.Income) (string, core.Date) { return inc.SourceID, inc.Date })
}

func within(p core.Period, d core.Date) bool {
	if !p.From.IsZero() && d.Before(p.From.Time) {
		return false
	}
	if !p.To.IsZero() && d.After(p.To.Time) {
		return false
	}
	return true
}

func remove[T any](records *[]T, what, id string, match func(T) bool) error {
	i := slices.IndexFunc(*records, match)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	*records = slices.Delete(*records, i, i+1)
	return nil
}

func latest[T any](records []T, sourceID string, key func(T) (string, core.Date)) (core.Date, bool, error) {
	var last core.Date
	found := false
	for _, r := range records {
		src, date := key(r)
		if src != sourceID {
			continue
		}
		if !found || date.After(last.Time) {
			last, found = date, true
		}
	}
	return last, found, nil
}
