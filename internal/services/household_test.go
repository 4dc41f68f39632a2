package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delat/internal/amqp"
	"delat/internal/core"
	"delat/internal/dedup"
	"delat/internal/metrics"
	"delat/internal/storage"
)

type household struct {
	svc     *HouseholdService
	store   *memStore
	events  *recordingPublisher
	metrics *metrics.Metrics
	groupID string
	sanna   string
	isak    string
}

func newHousehold(t *testing.T) *household {
	t.Helper()
	ctx := context.Background()

	store := newMemStore()
	events := &recordingPublisher{}
	m := metrics.New()
	svc := NewHouseholdService(store, events, Options{Metrics: m, Logger: quietLogger()})

	g, err := svc.CreateGroup(ctx, "Storgatan 4")
	require.NoError(t, err)
	sanna, err := svc.AddMember(ctx, g.ID, "Sanna")
	require.NoError(t, err)
	isak, err := svc.AddMember(ctx, g.ID, "Isak")
	require.NoError(t, err)

	return &household{svc: svc, store: store, events: events, metrics: m, groupID: g.ID, sanna: sanna.ID, isak: isak.ID}
}

func march(day int) core.Date {
	return core.NewDate(2025, time.March, day)
}

func TestHouseholdService_CreateGroupAndMemberValidation(t *testing.T) {
	svc := NewHouseholdService(newMemStore(), nil, Options{Logger: quietLogger()})
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, "  ")
	assert.ErrorIs(t, err, core.ErrEmptyName)

	g, err := svc.CreateGroup(ctx, "Home")
	require.NoError(t, err)

	_, err = svc.AddMember(ctx, g.ID, "")
	assert.ErrorIs(t, err, core.ErrEmptyName)
	_, err = svc.AddMember(ctx, "missing", "Olle")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHouseholdService_MembersCachedUntilMemberAdded(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	first, err := h.svc.Members(ctx, h.groupID)
	require.NoError(t, err)
	second, err := h.svc.Members(ctx, h.groupID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.store.memberLists)

	first[0].Name = "changed"
	again, err := h.svc.Members(ctx, h.groupID)
	require.NoError(t, err)
	assert.Equal(t, "Sanna", again[0].Name, "callers must not mutate the cached directory")

	_, err = h.svc.AddMember(ctx, h.groupID, "Olle")
	require.NoError(t, err)
	members, err := h.svc.Members(ctx, h.groupID)
	require.NoError(t, err)
	assert.Len(t, members, 3)
	assert.Equal(t, 2, h.store.memberLists)
}

func TestHouseholdService_MembersUnknownGroup(t *testing.T) {
	h := newHousehold(t)

	_, err := h.svc.Members(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHouseholdService_BalanceSnapshot(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	for _, e := range []core.Expense{
		{PayerID: h.sanna, Amount: 10000, Category: "housing", Description: "Rent", Date: march(1)},
		{PayerID: h.sanna, Amount: 4500, Category: "food", Description: "Groceries", Date: march(8)},
		{PayerID: h.isak, Amount: 6500, Category: "transport", Description: "Car", Date: march(15)},
		{PayerID: h.isak, Amount: 999, Category: "food", Description: "April dinner", Date: core.NewDate(2025, time.April, 1)},
	} {
		_, _, err := h.svc.AddExpense(ctx, h.groupID, e, true)
		require.NoError(t, err)
	}
	for _, inc := range []core.Income{
		{RecipientID: h.sanna, AmountCents: 1160800, Type: core.IncomeSalary, IncludedInSplit: true, Date: march(25)},
		{RecipientID: h.isak, AmountCents: 3200000, Type: core.IncomeSalary, IncludedInSplit: true, Date: march(25)},
	} {
		_, _, err := h.svc.AddIncome(ctx, h.groupID, inc, true)
		require.NoError(t, err)
	}

	snap, err := h.svc.BalanceSnapshot(ctx, h.groupID, 2025, time.March)
	require.NoError(t, err)

	assert.Equal(t, "March 2025", snap.Label)
	assert.InDelta(t, 21000, snap.Totals.TotalExpenses, 1e-6)
	assert.InDelta(t, 22608, snap.Totals.TotalHouseholdNet, 1e-6)
	require.Len(t, snap.Balances, 2)
	assert.Equal(t, h.sanna, snap.Balances[0].MemberID)
	assert.InDelta(t, 14196, snap.Balances[0].Balance, 1e-6)
	assert.InDelta(t, -14196, snap.Balances[1].Balance, 1e-6)
	require.Len(t, snap.Transfers, 1)
	assert.Equal(t, h.isak, snap.Transfers[0].FromID)
	assert.Equal(t, h.sanna, snap.Transfers[0].ToID)
	assert.InDelta(t, 14196, snap.Transfers[0].Amount, 1e-6)
	assert.False(t, snap.Settled)

	_, err = h.svc.AddSettlement(ctx, h.groupID, core.Settlement{FromID: h.isak, ToID: h.sanna, Amount: 14196, Date: march(31)})
	require.NoError(t, err)

	snap, err = h.svc.BalanceSnapshot(ctx, h.groupID, 2025, time.March)
	require.NoError(t, err)
	assert.True(t, snap.Settled)
	assert.Empty(t, snap.Transfers)
	assert.Equal(t, 1, testutil.CollectAndCount(h.metrics.SnapshotDuration))
}

func TestHouseholdService_BalanceSnapshotUnknownGroup(t *testing.T) {
	h := newHousehold(t)

	_, err := h.svc.BalanceSnapshot(context.Background(), "nope", 2025, time.March)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHouseholdService_AddExpenseDuplicateFlow(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	groceries := core.Expense{PayerID: h.sanna, Amount: 452.50, Category: "food", Description: "ICA Maxi", Date: march(8)}

	id, matches, err := h.svc.AddExpense(ctx, h.groupID, groceries, false)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Empty(t, matches)

	_, matches, err = h.svc.AddExpense(ctx, h.groupID, groceries, false)
	require.ErrorIs(t, err, ErrPossibleDuplicate)
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].Record.ID)
	assert.GreaterOrEqual(t, matches[0].Score, dedup.Threshold)
	assert.Contains(t, matches[0].Reasons, dedup.ReasonSameAmount)

	stored, err := h.store.ListExpenses(ctx, h.groupID, core.MonthPeriod(2025, time.March))
	require.NoError(t, err)
	assert.Len(t, stored, 1, "a suspected duplicate must not be stored")

	secondID, _, err := h.svc.AddExpense(ctx, h.groupID, groceries, true)
	require.NoError(t, err)
	assert.NotEqual(t, id, secondID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DuplicateChecks.WithLabelValues("expense", "clear")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DuplicateChecks.WithLabelValues("expense", "matches")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.RecordsCreated.WithLabelValues(amqp.KindExpense)))

	published := h.events.published()
	require.Len(t, published, 2)
	for _, msg := range published {
		assert.Equal(t, amqp.ActionCreated, msg.Action)
		assert.Equal(t, amqp.KindExpense, msg.Kind)
		assert.Equal(t, "2025-03-08", msg.Date)
	}
}

func TestHouseholdService_AddExpenseValidation(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	valid := core.Expense{PayerID: h.sanna, Amount: 100, Category: "food", Description: "Lunch", Date: march(3)}

	tests := []struct {
		name   string
		mutate func(*core.Expense)
		want   error
	}{
		{"zero amount", func(e *core.Expense) { e.Amount = 0 }, core.ErrInvalidAmount},
		{"missing date", func(e *core.Expense) { e.Date = core.Date{} }, core.ErrInvalidDate},
		{"unknown payer", func(e *core.Expense) { e.PayerID = "stranger" }, core.ErrUnknownMember},
		{"unknown split member", func(e *core.Expense) { e.Split = map[string]float64{"stranger": 100} }, core.ErrUnknownMember},
		{"split mismatch", func(e *core.Expense) { e.Split = map[string]float64{h.sanna: 40} }, core.ErrInvalidSplit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			_, _, err := h.svc.AddExpense(ctx, h.groupID, e, false)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsValidation(err))
		})
	}
	assert.Empty(t, h.events.published())
}

func TestHouseholdService_PublishFailureDoesNotFailWrite(t *testing.T) {
	h := newHousehold(t)
	h.events.err = errors.New("broker unavailable")

	id, _, err := h.svc.AddIncome(context.Background(), h.groupID,
		core.Income{RecipientID: h.isak, AmountCents: 2500000, Type: core.IncomeSalary, IncludedInSplit: true, Date: march(25)}, false)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsPublished.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.EventsPublished.WithLabelValues("ok")))
}

func TestHouseholdService_NilPublisher(t *testing.T) {
	store := newMemStore()
	svc := NewHouseholdService(store, nil, Options{Logger: quietLogger()})
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, "Home")
	require.NoError(t, err)
	m, err := svc.AddMember(ctx, g.ID, "Sanna")
	require.NoError(t, err)

	_, _, err = svc.AddExpense(ctx, g.ID, core.Expense{PayerID: m.ID, Amount: 50, Category: "food", Description: "Fika", Date: march(2)}, false)
	assert.NoError(t, err)
}

func TestHouseholdService_CheckIncomeExcludesItself(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	salary := core.Income{RecipientID: h.sanna, AmountCents: 3100000, Type: core.IncomeSalary, Note: "March salary", IncludedInSplit: true, Date: march(25)}

	id, _, err := h.svc.AddIncome(ctx, h.groupID, salary, false)
	require.NoError(t, err)

	salary.ID = id
	matches, err := h.svc.CheckIncome(ctx, h.groupID, salary)
	require.NoError(t, err)
	assert.Empty(t, matches)

	salary.ID = ""
	matches, err = h.svc.CheckIncome(ctx, h.groupID, salary)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].Record.ID)
}

func TestHouseholdService_AddSettlement(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	id, err := h.svc.AddSettlement(ctx, h.groupID, core.Settlement{FromID: h.isak, ToID: h.sanna, Amount: 500, Date: march(31)})
	require.NoError(t, err)

	stored, err := h.store.ListSettlements(ctx, h.groupID, core.MonthPeriod(2025, time.March))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, id, stored[0].ID)
	assert.Equal(t, "March 2025", stored[0].MonthLabel)

	_, err = h.svc.AddSettlement(ctx, h.groupID, core.Settlement{FromID: h.isak, ToID: "stranger", Amount: 500, Date: march(31)})
	assert.ErrorIs(t, err, core.ErrUnknownMember)
	_, err = h.svc.AddSettlement(ctx, h.groupID, core.Settlement{FromID: h.isak, ToID: h.isak, Amount: 500, Date: march(31)})
	assert.ErrorIs(t, err, core.ErrSameMember)
}

func TestHouseholdService_DeleteRecord(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	id, _, err := h.svc.AddExpense(ctx, h.groupID,
		core.Expense{PayerID: h.sanna, Amount: 120, Category: "food", Description: "Pizza", Date: march(14)}, false)
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteRecord(ctx, h.groupID, amqp.KindExpense, id, march(14)))
	stored, err := h.store.ListExpenses(ctx, h.groupID, core.MonthPeriod(2025, time.March))
	require.NoError(t, err)
	assert.Empty(t, stored)

	published := h.events.published()
	require.Len(t, published, 2)
	assert.Equal(t, amqp.ActionDeleted, published[1].Action)
	assert.Equal(t, id, published[1].RecordID)
	assert.Equal(t, "2025-03-14", published[1].Date)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RecordsDeleted.WithLabelValues(amqp.KindExpense)))

	err = h.svc.DeleteRecord(ctx, h.groupID, amqp.KindIncome, "missing", core.Date{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Error(t, h.svc.DeleteRecord(ctx, h.groupID, "invoice", id, core.Date{}))
	assert.Len(t, h.events.published(), 2)
}

func TestHouseholdService_DeleteWithoutDatePublishesToday(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	id, err := h.svc.AddSettlement(ctx, h.groupID, core.Settlement{FromID: h.isak, ToID: h.sanna, Amount: 10, Date: march(1)})
	require.NoError(t, err)
	require.NoError(t, h.svc.DeleteRecord(ctx, h.groupID, amqp.KindSettlement, id, core.Date{}))

	published := h.events.published()
	last := published[len(published)-1]
	_, err = core.ParseDate(last.Date)
	assert.NoError(t, err)
	assert.NotEqual(t, "2025-03-01", last.Date)
}

func TestHouseholdService_IncomeOverview(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	for _, inc := range []core.Income{
		{RecipientID: h.sanna, AmountCents: 1160800, Type: core.IncomeSalary, IncludedInSplit: true, Date: march(25)},
		{RecipientID: h.isak, AmountCents: 3200000, Type: core.IncomeSalary, IncludedInSplit: true, Date: march(25)},
		{RecipientID: h.isak, AmountCents: 150000, Type: core.IncomeBonus, Note: "Gift", IncludedInSplit: false, Date: march(26)},
	} {
		_, _, err := h.svc.AddIncome(ctx, h.groupID, inc, true)
		require.NoError(t, err)
	}

	res, err := h.svc.IncomeOverview(ctx, h.groupID, h.sanna, h.isak, 2025, time.March)
	require.NoError(t, err)
	assert.Equal(t, int64(4360800), res.TotalIncome)
	assert.Equal(t, int64(2180400), res.ShareA)
	assert.Equal(t, int64(150000), res.ExcludedTotal)
	assert.Equal(t, h.isak, res.Transfer.From)
	assert.Equal(t, h.sanna, res.Transfer.To)
	assert.Equal(t, int64(1019600), res.Transfer.Amount)

	_, err = h.svc.IncomeOverview(ctx, h.groupID, h.sanna, h.sanna, 2025, time.March)
	assert.ErrorIs(t, err, core.ErrSameMember)
	_, err = h.svc.IncomeOverview(ctx, h.groupID, "", h.isak, 2025, time.March)
	assert.ErrorIs(t, err, core.ErrMissingMember)
	_, err = h.svc.IncomeOverview(ctx, h.groupID, h.sanna, "stranger", 2025, time.March)
	assert.ErrorIs(t, err, core.ErrUnknownMember)
}

func TestHouseholdService_ListsRecordsOfMonth(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	_, _, err := h.svc.AddExpense(ctx, h.groupID, core.Expense{PayerID: h.sanna, Amount: 80, Category: "food", Description: "Bakery", Date: march(2)}, false)
	require.NoError(t, err)
	_, _, err = h.svc.AddExpense(ctx, h.groupID, core.Expense{PayerID: h.sanna, Amount: 80, Category: "food", Description: "Bakery", Date: core.NewDate(2025, time.February, 27)}, true)
	require.NoError(t, err)
	_, err = h.svc.AddSettlement(ctx, h.groupID, core.Settlement{FromID: h.isak, ToID: h.sanna, Amount: 40, Date: march(3)})
	require.NoError(t, err)

	expenses, err := h.svc.Expenses(ctx, h.groupID, 2025, time.March)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
	incomes, err := h.svc.Incomes(ctx, h.groupID, 2025, time.March)
	require.NoError(t, err)
	assert.Empty(t, incomes)
	settlements, err := h.svc.Settlements(ctx, h.groupID, 2025, time.March)
	require.NoError(t, err)
	assert.Len(t, settlements, 1)

	_, err = h.svc.Expenses(ctx, "nope", 2025, time.March)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHouseholdService_UncachedMembersSeeWritesFromAnotherService(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	reader := NewHouseholdService(h.store, nil, Options{Logger: quietLogger(), DisableMemberCache: true})
	assert.Nil(t, reader.MemberCache())

	snap, err := reader.BalanceSnapshot(ctx, h.groupID, 2025, time.March)
	require.NoError(t, err)
	require.Len(t, snap.Balances, 2)

	olle, err := h.svc.AddMember(ctx, h.groupID, "Olle")
	require.NoError(t, err)
	_, _, err = h.svc.AddExpense(ctx, h.groupID, core.Expense{PayerID: olle.ID, Amount: 300, Category: "food", Description: "Pizza", Date: march(12)}, true)
	require.NoError(t, err)

	snap, err = reader.BalanceSnapshot(ctx, h.groupID, 2025, time.March)
	require.NoError(t, err)
	require.Len(t, snap.Balances, 3)
	assert.Equal(t, olle.ID, snap.Balances[2].MemberID)
	assert.False(t, snap.Settled)
}

func TestHouseholdService_CheckUnknownGroup(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	_, err := h.svc.CheckExpense(ctx, "nope", core.Expense{Amount: 10, Description: "Lunch", Date: march(8)})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = h.svc.CheckIncome(ctx, "nope", core.Income{AmountCents: 1000, Date: march(8)})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
