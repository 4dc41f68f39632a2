// Package services orchestrates the record store, the computation engines and
// the event publisher on behalf of the HTTP API and the worker.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"delat/internal/amqp"
	"delat/internal/balance"
	"delat/internal/cache"
	"delat/internal/core"
	"delat/internal/dedup"
	"delat/internal/incomesplit"
	"delat/internal/log"
	"delat/internal/metrics"
)

// ErrPossibleDuplicate is returned by AddExpense and AddIncome when the
// record resembles existing ones and the caller did not confirm it.
var ErrPossibleDuplicate = errors.New("possible duplicate")

// RecordReader is the read side of the record store.
type RecordReader interface {
	GetGroup(ctx context.Context, id string) (core.Group, error)
	ListMembers(ctx context.Context, groupID string) ([]core.Member, error)
	ListExpenses(ctx context.Context, groupID string, p core.Period) ([]core.Expense, error)
	ListIncomes(ctx context.Context, groupID string, p core.Period) ([]core.Income, error)
	ListSettlements(ctx context.Context, groupID string, p core.Period) ([]core.Settlement, error)
}

// RecordWriter is the write side of the record store.
type RecordWriter interface {
	CreateGroup(ctx context.Context, name string) (core.Group, error)
	AddMember(ctx context.Context, groupID, name string) (core.Member, error)
	CreateExpense(ctx context.Context, e core.Expense) (string, error)
	CreateIncome(ctx context.Context, inc core.Income) (string, error)
	CreateSettlement(ctx context.Context, s core.Settlement) (string, error)
	DeleteExpense(ctx context.Context, groupID, id string) error
	DeleteIncome(ctx context.Context, groupID, id string) error
	DeleteSettlement(ctx context.Context, groupID, id string) error
}

type Store interface {
	RecordReader
	RecordWriter
}

// EventPublisher announces record changes. Publishing is best effort.
type EventPublisher interface {
	PublishRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error
}

type Options struct {
	// DedupLookbackDays bounds the records compared with a candidate.
	DedupLookbackDays int
	MemberCacheTTL    time.Duration
	MemberCacheSize   int
	Metrics           *metrics.Metrics
	Logger            *log.Logger

	// DisableMemberCache reads the member directory from the store on every
	// call. Set it in processes that do not own member writes.
	DisableMemberCache bool
}

func DefaultOptions() Options {
	return Options{
		DedupLookbackDays: 31,
		MemberCacheTTL:    5 * time.Minute,
		MemberCacheSize:   256,
	}
}

// Snapshot is a group's balance position for one month.
type Snapshot struct {
	GroupID   string
	Year      int
	Month     time.Month
	Label     string
	Balances  []balance.Balance
	Totals    balance.Totals
	Transfers []balance.Transfer
	Settled   bool
}

// HouseholdService is the application's use-case layer.
type HouseholdService struct {
	store    Store
	events   EventPublisher
	members  *cache.LRUCache[[]core.Member]
	lookback int
	metrics  *metrics.Metrics
	logger   *log.Logger
	logs     *log.StructuredLogger
}

// NewHouseholdService wires the service. events may be nil to disable
// record-changed events.
func NewHouseholdService(store Store, events EventPublisher, opts Options) *HouseholdService {
	def := DefaultOptions()
	if opts.DedupLookbackDays <= 0 {
		opts.DedupLookbackDays = def.DedupLookbackDays
	}
	if opts.MemberCacheTTL <= 0 {
		opts.MemberCacheTTL = def.MemberCacheTTL
	}
	if opts.MemberCacheSize <= 0 {
		opts.MemberCacheSize = def.MemberCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHousehold)

	var members *cache.LRUCache[[]core.Member]
	if !opts.DisableMemberCache {
		members = cache.NewLRUCache[[]core.Member](opts.MemberCacheSize, opts.MemberCacheTTL)
	}

	return &HouseholdService{
		store:    store,
		events:   events,
		members:  members,
		lookback: opts.DedupLookbackDays,
		metrics:  opts.Metrics,
		logger:   logger,
		logs:     log.NewStructuredLogger(logger),
	}
}

// MemberCache exposes the member directory cache for periodic cleanup. It is
// nil when the cache is disabled.
func (s *HouseholdService) MemberCache() cache.Cleaner {
	if s.members == nil {
		return nil
	}
	return s.members
}

func (s *HouseholdService) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	if strings.TrimSpace(name) == "" {
		return core.Group{}, core.ErrEmptyName
	}
	g, err := s.store.CreateGroup(ctx, name)
	if err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func (s *HouseholdService) AddMember(ctx context.Context, groupID, name string) (core.Member, error) {
	if strings.TrimSpace(name) == "" {
		return core.Member{}, core.ErrEmptyName
	}
	m, err := s.store.AddMember(ctx, groupID, name)
	if err != nil {
		return core.Member{}, fmt.Errorf("add member: %w", err)
	}
	if s.members != nil {
		s.members.Delete(groupID)
	}
	return m, nil
}

// Members returns the group's member directory in joining order.
func (s *HouseholdService) Members(ctx context.Context, groupID string) ([]core.Member, error) {
	if s.members != nil {
		if cached, ok := s.members.Get(groupID); ok {
			return slices.Clone(cached), nil
		}
	}
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if s.members == nil {
		return members, nil
	}
	s.members.Set(groupID, members)
	return slices.Clone(members), nil
}

// BalanceSnapshot loads the month's records concurrently and computes each
// member's balance plus the transfers that would settle them.
func (s *HouseholdService) BalanceSnapshot(ctx context.Context, groupID string, year int, month time.Month) (Snapshot, error) {
	start := time.Now()
	period := core.MonthPeriod(year, month)

	var (
		members     []core.Member
		expenses    []core.Expense
		incomes     []core.Income
		settlements []core.Settlement
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		members, err = s.Members(gctx, groupID)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = s.store.ListExpenses(gctx, groupID, period)
		return err
	})
	g.Go(func() (err error) {
		incomes, err = s.store.ListIncomes(gctx, groupID, period)
		return err
	})
	g.Go(func() (err error) {
		settlements, err = s.store.ListSettlements(gctx, groupID, period)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("load records for %s: %w", core.MonthLabel(year, month), err)
	}

	computed := balance.ComputeSnapshot(expenses, members, settlements, incomes)
	snap := Snapshot{
		GroupID:   groupID,
		Year:      year,
		Month:     month,
		Label:     core.MonthLabel(year, month),
		Balances:  computed.Balances,
		Totals:    computed.Totals,
		Transfers: balance.SuggestTransfers(computed.Balances),
		Settled:   balance.Settled(computed.Balances, 0.01),
	}

	if s.metrics != nil {
		s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.DebugContext(ctx, "Balance snapshot computed",
		log.FieldGroupID, groupID,
		log.FieldYear, year,
		log.FieldMonth, int(month),
		"members", len(members),
		"expenses", len(expenses),
		"incomes", len(incomes),
		"settlements", len(settlements))
	return snap, nil
}

// IncomeOverview runs the two-party income split for the month.
func (s *HouseholdService) IncomeOverview(ctx context.Context, groupID, personA, personB string, year int, month time.Month) (incomesplit.Result, error) {
	if personA == "" || personB == "" {
		return incomesplit.Result{}, core.ErrMissingMember
	}
	if personA == personB {
		return incomesplit.Result{}, core.ErrSameMember
	}
	members, err := s.Members(ctx, groupID)
	if err != nil {
		return incomesplit.Result{}, err
	}
	if !isMember(members, personA) || !isMember(members, personB) {
		return incomesplit.Result{}, core.ErrUnknownMember
	}

	incomes, err := s.store.ListIncomes(ctx, groupID, core.MonthPeriod(year, month))
	if err != nil {
		return incomesplit.Result{}, fmt.Errorf("list incomes: %w", err)
	}
	return incomesplit.Compute(incomes, personA, personB, year, month), nil
}

// Expenses lists the group's expenses dated in the month.
func (s *HouseholdService) Expenses(ctx context.Context, groupID string, year int, month time.Month) ([]core.Expense, error) {
	if _, err := s.Members(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, groupID, core.MonthPeriod(year, month))
}

func (s *HouseholdService) Incomes(ctx context.Context, groupID string, year int, month time.Month) ([]core.Income, error) {
	if _, err := s.Members(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListIncomes(ctx, groupID, core.MonthPeriod(year, month))
}

func (s *HouseholdService) Settlements(ctx context.Context, groupID string, year int, month time.Month) ([]core.Settlement, error) {
	if _, err := s.Members(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListSettlements(ctx, groupID, core.MonthPeriod(year, month))
}

// CheckExpense returns existing expenses that resemble e.
func (s *HouseholdService) CheckExpense(ctx context.Context, groupID string, e core.Expense) ([]dedup.Match, error) {
	if err := e.Date.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.Members(ctx, groupID); err != nil {
		return nil, err
	}
	existing, err := s.store.ListExpenses(ctx, groupID, core.Around(e.Date, s.lookback))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	existing = slices.DeleteFunc(existing, func(x core.Expense) bool { return e.ID != "" && x.ID == e.ID })

	matches := dedup.Score(dedup.FromExpense(e), dedup.FromExpenses(existing), dedup.KindExpense)
	s.observeCheck(ctx, groupID, dedup.KindExpense, matches)
	return matches, nil
}

// CheckIncome returns existing incomes that resemble inc.
func (s *HouseholdService) CheckIncome(ctx context.Context, groupID string, inc core.Income) ([]dedup.Match, error) {
	if err := inc.Date.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.Members(ctx, groupID); err != nil {
		return nil, err
	}
	existing, err := s.store.ListIncomes(ctx, groupID, core.Around(inc.Date, s.lookback))
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	existing = slices.DeleteFunc(existing, func(x core.Income) bool { return inc.ID != "" && x.ID == inc.ID })

	matches := dedup.Score(dedup.FromIncome(inc), dedup.FromIncomes(existing), dedup.KindIncome)
	s.observeCheck(ctx, groupID, dedup.KindIncome, matches)
	return matches, nil
}

// AddExpense validates and stores e. Unless confirm is set, an expense that
// resembles existing ones is not stored: the matches are returned together
// with ErrPossibleDuplicate.
func (s *HouseholdService) AddExpense(ctx context.Context, groupID string, e core.Expense, confirm bool) (string, []dedup.Match, error) {
	e.GroupID = groupID
	if err := e.Validate(); err != nil {
		return "", nil, err
	}
	members, err := s.Members(ctx, groupID)
	if err != nil {
		return "", nil, err
	}
	if !isMember(members, e.PayerID) {
		return "", nil, fmt.Errorf("payer %s: %w", e.PayerID, core.ErrUnknownMember)
	}
	for memberID := range e.Split {
		if !isMember(members, memberID) {
			return "", nil, fmt.Errorf("split member %s: %w", memberID, core.ErrUnknownMember)
		}
	}

	if !confirm {
		matches, err := s.CheckExpense(ctx, groupID, e)
		if err != nil {
			return "", nil, err
		}
		if len(matches) > 0 {
			return "", matches, ErrPossibleDuplicate
		}
	}

	id, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return "", nil, fmt.Errorf("create expense: %w", err)
	}
	s.recordCreated(ctx, groupID, amqp.KindExpense, id, e.Date, e.Major())
	return id, nil, nil
}

// AddIncome is AddExpense for incomes.
func (s *HouseholdService) AddIncome(ctx context.Context, groupID string, inc core.Income, confirm bool) (string, []dedup.Match, error) {
	inc.GroupID = groupID
	if err := inc.Validate(); err != nil {
		return "", nil, err
	}
	members, err := s.Members(ctx, groupID)
	if err != nil {
		return "", nil, err
	}
	if !isMember(members, inc.RecipientID) {
		return "", nil, fmt.Errorf("recipient %s: %w", inc.RecipientID, core.ErrUnknownMember)
	}

	if !confirm {
		matches, err := s.CheckIncome(ctx, groupID, inc)
		if err != nil {
			return "", nil, err
		}
		if len(matches) > 0 {
			return "", matches, ErrPossibleDuplicate
		}
	}

	id, err := s.store.CreateIncome(ctx, inc)
	if err != nil {
		return "", nil, fmt.Errorf("create income: %w", err)
	}
	s.recordCreated(ctx, groupID, amqp.KindIncome, id, inc.Date, inc.AmountCents)
	return id, nil, nil
}

// AddSettlement records a completed payment between two members. An empty
// MonthLabel is derived from the settlement date.
func (s *HouseholdService) AddSettlement(ctx context.Context, groupID string, st core.Settlement) (string, error) {
	st.GroupID = groupID
	if err := st.Validate(); err != nil {
		return "", err
	}
	members, err := s.Members(ctx, groupID)
	if err != nil {
		return "", err
	}
	if !isMember(members, st.FromID) || !isMember(members, st.ToID) {
		return "", core.ErrUnknownMember
	}
	if st.MonthLabel == "" {
		st.MonthLabel = core.MonthLabel(st.Date.Year(), st.Date.Month())
	}

	id, err := s.store.CreateSettlement(ctx, st)
	if err != nil {
		return "", fmt.Errorf("create settlement: %w", err)
	}
	s.recordCreated(ctx, groupID, amqp.KindSettlement, id, st.Date, st.Amount)
	return id, nil
}

// DeleteRecord removes an expense, income or settlement. date is the
// record's date when known and only feeds the published event.
func (s *HouseholdService) DeleteRecord(ctx context.Context, groupID, kind, id string, date core.Date) error {
	var err error
	switch kind {
	case amqp.KindExpense:
		err = s.store.DeleteExpense(ctx, groupID, id)
	case amqp.KindIncome:
		err = s.store.DeleteIncome(ctx, groupID, id)
	case amqp.KindSettlement:
		err = s.store.DeleteSettlement(ctx, groupID, id)
	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordsDeleted.WithLabelValues(kind).Inc()
	}
	if date.IsZero() {
		date = core.Date{Time: time.Now().UTC()}
	}
	s.publish(ctx, amqp.NewRecordChangedMessage(groupID, kind, id, amqp.ActionDeleted, date))
	return nil
}

func (s *HouseholdService) recordCreated(ctx context.Context, groupID, kind, id string, date core.Date, amount any) {
	s.logs.LogRecordCreated(ctx, groupID, kind, id, amount)
	if s.metrics != nil {
		s.metrics.RecordsCreated.WithLabelValues(kind).Inc()
	}
	s.publish(ctx, amqp.NewRecordChangedMessage(groupID, kind, id, amqp.ActionCreated, date))
}

// publish never fails the write that triggered it.
func (s *HouseholdService) publish(ctx context.Context, msg *amqp.RecordChangedMessage) {
	if s.events == nil {
		return
	}
	outcome := "ok"
	if err := s.events.PublishRecordChanged(ctx, msg); err != nil {
		outcome = "error"
		s.logger.WarnContext(ctx, "Failed to publish record changed event",
			log.FieldGroupID, msg.GroupID,
			log.FieldKind, msg.Kind,
			log.FieldRecordID, msg.RecordID,
			log.FieldError, err)
	}
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(outcome).Inc()
	}
}

func (s *HouseholdService) observeCheck(ctx context.Context, groupID string, kind dedup.Kind, matches []dedup.Match) {
	outcome := "clear"
	if len(matches) > 0 {
		outcome = "matches"
		s.logs.LogDuplicates(ctx, groupID, string(kind), len(matches), matches[0].Score)
	}
	if s.metrics != nil {
		s.metrics.DuplicateChecks.WithLabelValues(string(kind), outcome).Inc()
	}
}

func isMember(members []core.Member, id string) bool {
	return slices.ContainsFunc(members, func(m core.Member) bool { return m.ID == id })
}
