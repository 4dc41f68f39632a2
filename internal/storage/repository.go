package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"delat/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a group or record does not exist.
var ErrNotFound = errors.New("not found")

const (
	minDate = "0000-01-01"
	maxDate = "9999-12-31"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateGroup stores a new household.
func (r *SQLiteRepository) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	g := core.Group{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO households (id, name) VALUES (?, ?)`, g.ID, g.Name); err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}
	slog.InfoContext(ctx, "Group created", "group_id", g.ID)
	return g, nil
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, id string) (core.Group, error) {
	var g core.Group
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM households WHERE id = ?`, id).Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Group{}, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// AddMember adds a member to an existing group.
func (r *SQLiteRepository) AddMember(ctx context.Context, groupID, name string) (core.Member, error) {
	if _, err := r.GetGroup(ctx, groupID); err != nil {
		return core.Member{}, err
	}
	m := core.Member{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	_, err := r.db.ExecContext(ctx, `INSERT INTO members (id, group_id, name) VALUES (?, ?, ?)`, m.ID, groupID, m.Name)
	if err != nil {
		return core.Member{}, fmt.Errorf("add member: %w", err)
	}
	slog.InfoContext(ctx, "Member added", "group_id", groupID, "member_id", m.ID)
	return m, nil
}

// ListMembers returns the group's members in the order they joined.
func (r *SQLiteRepository) ListMembers(ctx context.Context, groupID string) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM members WHERE group_id = ? ORDER BY rowid`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateExpense stores an expense and its split rows in one transaction.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	repeat := e.Repeat
	if repeat == "" {
		repeat = core.RepeatNone
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (id, group_id, amount, payer_id, category, description, date, repeat, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, core.NormalizeMajor(e.Amount), e.PayerID, e.Category, e.Description,
		e.Date.String(), string(repeat), e.SourceID)
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}

	for memberID, amount := range e.Split {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, member_id, amount) VALUES (?, ?, ?)`,
			e.ID, memberID, core.NormalizeMajor(amount))
		if err != nil {
			return "", fmt.Errorf("insert expense split: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"group_id", e.GroupID,
		"amount", e.Amount,
		"date", e.Date.String())
	return e.ID, nil
}

// ListExpenses returns the group's expenses dated within p, oldest first.
// A zero bound leaves that side of the period open.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, groupID string, p core.Period) ([]core.Expense, error) {
	from, to := bounds(p)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, amount, payer_id, category, description, date, repeat, source_id
		FROM expenses
		WHERE group_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, rowid`, groupID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	expenses, err := scanExpenses(rows)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	splits, err := r.splitsFor(ctx, groupID, from, to)
	if err != nil {
		return nil, err
	}
	for i := range expenses {
		if s, ok := splits[expenses[i].ID]; ok {
			expenses[i].Split = s
		}
	}
	return expenses, nil
}

// ListRecurringExpenses returns every expense with a repeat policy, across groups.
func (r *SQLiteRepository) ListRecurringExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, amount, payer_id, category, description, date, repeat, source_id
		FROM expenses
		WHERE repeat != 'none' AND source_id = ''
		ORDER BY date, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	expenses, err := scanExpenses(rows)
	if err != nil {
		return nil, err
	}
	for i := range expenses {
		split, err := r.splitOf(ctx, expenses[i].ID)
		if err != nil {
			return nil, err
		}
		expenses[i].Split = split
	}
	return expenses, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, groupID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND group_id = ?`, id, groupID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if err := expectAffected(res, "expense", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM expense_splits WHERE expense_id = ?`, id); err != nil {
		return fmt.Errorf("delete expense splits: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	slog.InfoContext(ctx, "Expense deleted", "id", id, "group_id", groupID)
	return nil
}

func (r *SQLiteRepository) CreateIncome(ctx context.Context, inc core.Income) (string, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	repeat := inc.Repeat
	if repeat == "" {
		repeat = core.RepeatNone
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO incomes (id, group_id, amount_cents, recipient_id, type, note, date, repeat, included_in_split, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.GroupID, inc.AmountCents, inc.RecipientID, string(inc.Type), inc.Note,
		inc.Date.String(), string(repeat), inc.IncludedInSplit, inc.SourceID)
	if err != nil {
		return "", fmt.Errorf("insert income: %w", err)
	}
	slog.InfoContext(ctx, "Income saved",
		"id", inc.ID,
		"group_id", inc.GroupID,
		"amount_cents", inc.AmountCents,
		"date", inc.Date.String())
	return inc.ID, nil
}

// ListIncomes returns the group's incomes dated within p, oldest first.
func (r *SQLiteRepository) ListIncomes(ctx context.Context, groupID string, p core.Period) ([]core.Income, error) {
	from, to := bounds(p)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, amount_cents, recipient_id, type, note, date, repeat, included_in_split, source_id
		FROM incomes
		WHERE group_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, rowid`, groupID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	return scanIncomes(rows)
}

// ListRecurringIncomes returns every income with a repeat policy, across groups.
func (r *SQLiteRepository) ListRecurringIncomes(ctx context.Context) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, amount_cents, recipient_id, type, note, date, repeat, included_in_split, source_id
		FROM incomes
		WHERE repeat != 'none' AND source_id = ''
		ORDER BY date, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list recurring incomes: %w", err)
	}
	return scanIncomes(rows)
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, groupID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM incomes WHERE id = ? AND group_id = ?`, id, groupID)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	if err := expectAffected(res, "income", id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Income deleted", "id", id, "group_id", groupID)
	return nil
}

func (r *SQLiteRepository) CreateSettlement(ctx context.Context, s core.Settlement) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settlements (id, group_id, from_id, to_id, amount, date, month_label)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.GroupID, s.FromID, s.ToID, core.NormalizeMajor(s.Amount), s.Date.String(), s.MonthLabel)
	if err != nil {
		return "", fmt.Errorf("insert settlement: %w", err)
	}
	slog.InfoContext(ctx, "Settlement saved",
		"id", s.ID,
		"group_id", s.GroupID,
		"from", s.FromID,
		"to", s.ToID,
		"amount", s.Amount)
	return s.ID, nil
}

// ListSettlements returns the group's settlements dated within p, oldest first.
func (r *SQLiteRepository) ListSettlements(ctx context.Context, groupID string, p core.Period) ([]core.Settlement, error) {
	from, to := bounds(p)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, from_id, to_id, amount, date, month_label
		FROM settlements
		WHERE group_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, rowid`, groupID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []core.Settlement
	for rows.Next() {
		var (
			s    core.Settlement
			date string
		)
		if err := rows.Scan(&s.ID, &s.GroupID, &s.FromID, &s.ToID, &s.Amount, &date, &s.MonthLabel); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		if s.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("settlement %s: %w", s.ID, err)
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

func (r *SQLiteRepository) DeleteSettlement(ctx context.Context, groupID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM settlements WHERE id = ? AND group_id = ?`, id, groupID)
	if err != nil {
		return fmt.Errorf("delete settlement: %w", err)
	}
	if err := expectAffected(res, "settlement", id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Settlement deleted", "id", id, "group_id", groupID)
	return nil
}

// LastExpenseOccurrence returns the date of the latest expense generated
// from sourceID. ok is false when none has been generated yet.
func (r *SQLiteRepository) LastExpenseOccurrence(ctx context.Context, sourceID string) (date core.Date, ok bool, err error) {
	return r.lastOccurrence(ctx, `SELECT MAX(date) FROM expenses WHERE source_id = ?`, sourceID)
}

// LastIncomeOccurrence is LastExpenseOccurrence for incomes.
func (r *SQLiteRepository) LastIncomeOccurrence(ctx context.Context, sourceID string) (date core.Date, ok bool, err error) {
	return r.lastOccurrence(ctx, `SELECT MAX(date) FROM incomes WHERE source_id = ?`, sourceID)
}

func (r *SQLiteRepository) lastOccurrence(ctx context.Context, query, sourceID string) (core.Date, bool, error) {
	var last sql.NullString
	if err := r.db.QueryRowContext(ctx, query, sourceID).Scan(&last); err != nil {
		return core.Date{}, false, fmt.Errorf("last occurrence of %s: %w", sourceID, err)
	}
	if !last.Valid {
		return core.Date{}, false, nil
	}
	d, err := core.ParseDate(last.String)
	if err != nil {
		return core.Date{}, false, fmt.Errorf("last occurrence of %s: %w", sourceID, err)
	}
	return d, true, nil
}

func (r *SQLiteRepository) splitsFor(ctx context.Context, groupID, from, to string) (map[string]map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.expense_id, s.member_id, s.amount
		FROM expense_splits s
		JOIN expenses e ON e.id = s.expense_id
		WHERE e.group_id = ? AND e.date BETWEEN ? AND ?`, groupID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list expense splits: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var (
			expenseID, memberID string
			amount              float64
		)
		if err := rows.Scan(&expenseID, &memberID, &amount); err != nil {
			return nil, fmt.Errorf("scan expense split: %w", err)
		}
		if out[expenseID] == nil {
			out[expenseID] = make(map[string]float64)
		}
		out[expenseID][memberID] = amount
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) splitOf(ctx context.Context, expenseID string) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT member_id, amount FROM expense_splits WHERE expense_id = ?`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("get expense split: %w", err)
	}
	defer rows.Close()

	var split map[string]float64
	for rows.Next() {
		var (
			memberID string
			amount   float64
		)
		if err := rows.Scan(&memberID, &amount); err != nil {
			return nil, fmt.Errorf("scan expense split: %w", err)
		}
		if split == nil {
			split = make(map[string]float64)
		}
		split[memberID] = amount
	}
	return split, rows.Err()
}

func scanExpenses(rows *sql.Rows) ([]core.Expense, error) {
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			e            core.Expense
			date, repeat string
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Amount, &e.PayerID, &e.Category, &e.Description, &date, &repeat, &e.SourceID); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		e.Date = d
		e.Repeat = core.RepeatPolicy(repeat)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func scanIncomes(rows *sql.Rows) ([]core.Income, error) {
	defer rows.Close()

	var incomes []core.Income
	for rows.Next() {
		var (
			inc               core.Income
			typ, date, repeat string
		)
		if err := rows.Scan(&inc.ID, &inc.GroupID, &inc.AmountCents, &inc.RecipientID, &typ, &inc.Note,
			&date, &repeat, &inc.IncludedInSplit, &inc.SourceID); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("income %s: %w", inc.ID, err)
		}
		inc.Date = d
		inc.Type = core.IncomeType(typ)
		inc.Repeat = core.RepeatPolicy(repeat)
		incomes = append(incomes, inc)
	}
	return incomes, rows.Err()
}

func expectAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

func bounds(p core.Period) (from, to string) {
	from, to = minDate, maxDate
	if !p.From.IsZero() {
		from = p.From.String()
	}
	if !p.To.IsZero() {
		to = p.To.String()
	}
	return from, to
}
