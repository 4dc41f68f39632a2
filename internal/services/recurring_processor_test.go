package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delat/internal/amqp"
	"delat/internal/core"
)

func newTestProcessor(h *household, now time.Time) *RecurringProcessor {
	return NewRecurringProcessor(h.store, h.svc, RecurringProcessorConfig{
		Interval: time.Hour,
		Metrics:  h.metrics,
		Logger:   quietLogger(),
		Now:      func() time.Time { return now },
	})
}

func addTemplate(t *testing.T, h *household, e core.Expense) string {
	t.Helper()
	id, _, err := h.svc.AddExpense(context.Background(), h.groupID, e, true)
	require.NoError(t, err)
	return id
}

func TestRecurringProcessor_MonthlyExpenseCatchesUp(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	rent := addTemplate(t, h, core.Expense{
		PayerID: h.sanna, Amount: 9800, Category: "housing", Description: "Rent",
		Date: core.NewDate(2025, time.January, 31), Repeat: core.RepeatMonthly,
	})
	p := newTestProcessor(h, time.Time{})

	now := time.Date(2025, time.April, 15, 9, 0, 0, 0, time.UTC)
	created, err := p.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	occurrences := h.store.expensesFrom(rent)
	require.Len(t, occurrences, 2)
	assert.Equal(t, "2025-02-28", occurrences[0].Date.String())
	assert.Equal(t, "2025-03-31", occurrences[1].Date.String())
	for _, occ := range occurrences {
		assert.Equal(t, core.RepeatNone, occ.Repeat)
		assert.Equal(t, "Rent", occ.Description)
		assert.Equal(t, h.groupID, occ.GroupID)
		assert.NotEqual(t, rent, occ.ID)
	}

	created, err = p.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, created, "a second run must not repeat occurrences")

	created, err = p.ProcessDue(ctx, time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.RecurringCreated.WithLabelValues(amqp.KindExpense)))
	published := h.events.published()
	assert.Len(t, published, 4)
	assert.Equal(t, "2025-04-30", published[3].Date)
}

func TestRecurringProcessor_MonthlyIncomeAndYearlyExpense(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()

	salaryID, _, err := h.svc.AddIncome(ctx, h.groupID, core.Income{
		RecipientID: h.isak, AmountCents: 3200000, Type: core.IncomeSalary, IncludedInSplit: true,
		Date: core.NewDate(2025, time.January, 25), Repeat: core.RepeatMonthly,
	}, true)
	require.NoError(t, err)
	insurance := addTemplate(t, h, core.Expense{
		PayerID: h.isak, Amount: 2400, Category: "insurance", Description: "Home insurance",
		Date: core.NewDate(2024, time.February, 29), Repeat: core.RepeatYearly,
	})

	p := newTestProcessor(h, time.Time{})
	created, err := p.ProcessDue(ctx, time.Date(2025, time.March, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	incomes, err := h.store.ListIncomes(ctx, h.groupID, core.Period{
		From: core.NewDate(2025, time.February, 1),
		To:   core.NewDate(2025, time.March, 31),
	})
	require.NoError(t, err)
	require.Len(t, incomes, 2)
	for _, inc := range incomes {
		assert.Equal(t, salaryID, inc.SourceID)
		assert.Equal(t, 25, inc.Date.Day())
		assert.True(t, inc.IncludedInSplit)
	}

	yearly := h.store.expensesFrom(insurance)
	require.Len(t, yearly, 1)
	assert.Equal(t, "2025-02-28", yearly[0].Date.String())
}

func TestRecurringProcessor_FutureTemplateNotDue(t *testing.T) {
	h := newHousehold(t)
	addTemplate(t, h, core.Expense{
		PayerID: h.sanna, Amount: 300, Category: "subscriptions", Description: "Streaming",
		Date: core.NewDate(2025, time.June, 1), Repeat: core.RepeatMonthly,
	})

	created, err := newTestProcessor(h, time.Time{}).ProcessDue(context.Background(), time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestRecurringProcessor_CatchUpIsBounded(t *testing.T) {
	h := newHousehold(t)
	gym := addTemplate(t, h, core.Expense{
		PayerID: h.sanna, Amount: 400, Category: "health", Description: "Gym",
		Date: core.NewDate(2015, time.January, 5), Repeat: core.RepeatMonthly,
	})
	p := newTestProcessor(h, time.Time{})
	now := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)

	created, err := p.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, maxCatchUp, created)

	created, err = p.ProcessDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, maxCatchUp, created)
	assert.Len(t, h.store.expensesFrom(gym), 2*maxCatchUp)
}

func TestRecurringProcessor_NotInitialized(t *testing.T) {
	p := NewRecurringProcessor(nil, nil, RecurringProcessorConfig{Logger: quietLogger()})

	_, err := p.ProcessDue(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestDefaultRecurringProcessorConfig(t *testing.T) {
	config := DefaultRecurringProcessorConfig()
	assert.Equal(t, time.Hour, config.Interval)

	p := NewRecurringProcessor(nil, nil, RecurringProcessorConfig{Logger: quietLogger()})
	assert.Equal(t, time.Hour, p.config.Interval)
	assert.NotNil(t, p.config.Now)
}

func TestRecurringProcessor_Lifecycle(t *testing.T) {
	h := newHousehold(t)
	rent := addTemplate(t, h, core.Expense{
		PayerID: h.sanna, Amount: 9800, Category: "housing", Description: "Rent",
		Date: core.NewDate(2025, time.January, 31), Repeat: core.RepeatMonthly,
	})
	p := newTestProcessor(h, time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Stop(ctx), "stopping an idle processor is a no-op")

	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(ctx), "starting twice must fail")

	require.Eventually(t, func() bool {
		return len(h.store.expensesFrom(rent)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())

	require.NoError(t, p.Start(ctx), "a stopped processor can be restarted")
	require.NoError(t, p.Stop(stopCtx))
}
