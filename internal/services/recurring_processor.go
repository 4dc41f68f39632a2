package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"delat/internal/amqp"
	"delat/internal/core"
	"delat/internal/log"
	"delat/internal/metrics"
)

// maxCatchUp bounds the occurrences generated for one template in a run.
const maxCatchUp = 36

// RecurringSource lists repeating templates and their generated occurrences.
type RecurringSource interface {
	ListRecurringExpenses(ctx context.Context) ([]core.Expense, error)
	ListRecurringIncomes(ctx context.Context) ([]core.Income, error)
	LastExpenseOccurrence(ctx context.Context, sourceID string) (core.Date, bool, error)
	LastIncomeOccurrence(ctx context.Context, sourceID string) (core.Date, bool, error)
}

type RecurringProcessorConfig struct {
	// Interval is how often templates are checked (default: 1h).
	Interval time.Duration
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultRecurringProcessorConfig() RecurringProcessorConfig {
	return RecurringProcessorConfig{Interval: time.Hour}
}

// RecurringProcessor creates the occurrences of repeating expenses and
// incomes once they fall due. A template's first occurrence is the template
// itself; each generated occurrence points back to it through SourceID.
type RecurringProcessor struct {
	source    RecurringSource
	household *HouseholdService
	config    RecurringProcessorConfig
	logger    *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecurringProcessor(source RecurringSource, household *HouseholdService, config RecurringProcessorConfig) *RecurringProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultRecurringProcessorConfig().Interval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &RecurringProcessor{
		source:    source,
		household: household,
		config:    config,
		logger:    logger.WithComponent(log.ComponentRecurring),
	}
}

// ProcessDue creates every occurrence due on or before now and returns how
// many were created. A failing template is logged and skipped.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.source == nil || p.household == nil {
		return 0, fmt.Errorf("recurring processor not properly initialized")
	}

	expenses, err := p.source.ListRecurringExpenses(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring expenses: %w", err)
	}
	incomes, err := p.source.ListRecurringIncomes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring incomes: %w", err)
	}

	created := 0
	for _, tmpl := range expenses {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		n, err := p.processExpense(ctx, tmpl, now)
		created += n
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to process recurring expense",
				log.FieldGroupID, tmpl.GroupID,
				log.FieldRecordID, tmpl.ID,
				log.FieldError, err)
		}
	}
	for _, tmpl := range incomes {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		n, err := p.processIncome(ctx, tmpl, now)
		created += n
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to process recurring income",
				log.FieldGroupID, tmpl.GroupID,
				log.FieldRecordID, tmpl.ID,
				log.FieldError, err)
		}
	}

	p.logger.InfoContext(ctx, "Recurring processing complete",
		"created", created,
		"templates", len(expenses)+len(incomes),
		log.FieldDate, now.Format(time.DateOnly))
	return created, nil
}

func (p *RecurringProcessor) processExpense(ctx context.Context, tmpl core.Expense, now time.Time) (int, error) {
	last, ok, err := p.source.LastExpenseOccurrence(ctx, tmpl.ID)
	if err != nil {
		return 0, fmt.Errorf("last occurrence: %w", err)
	}
	if !ok {
		last = tmpl.Date
	}

	return p.generate(ctx, tmpl.Repeat, tmpl.Date, last, now, func(date core.Date) error {
		occ := tmpl
		occ.ID = ""
		occ.Date = date
		occ.Repeat = core.RepeatNone
		occ.SourceID = tmpl.ID
		_, _, err := p.household.AddExpense(ctx, tmpl.GroupID, occ, true)
		if err == nil {
			p.created(ctx, amqp.KindExpense, tmpl.GroupID, tmpl.ID, date)
		}
		return err
	})
}

func (p *RecurringProcessor) processIncome(ctx context.Context, tmpl core.Income, now time.Time) (int, error) {
	last, ok, err := p.source.LastIncomeOccurrence(ctx, tmpl.ID)
	if err != nil {
		return 0, fmt.Errorf("last occurrence: %w", err)
	}
	if !ok {
		last = tmpl.Date
	}

	return p.generate(ctx, tmpl.Repeat, tmpl.Date, last, now, func(date core.Date) error {
		occ := tmpl
		occ.ID = ""
		occ.Date = date
		occ.Repeat = core.RepeatNone
		occ.SourceID = tmpl.ID
		_, _, err := p.household.AddIncome(ctx, tmpl.GroupID, occ, true)
		if err == nil {
			p.created(ctx, amqp.KindIncome, tmpl.GroupID, tmpl.ID, date)
		}
		return err
	})
}

// generate calls create for each due occurrence after last, oldest first.
func (p *RecurringProcessor) generate(ctx context.Context, policy core.RepeatPolicy, start, last core.Date, now time.Time, create func(core.Date) error) (int, error) {
	checker, err := GetDuenessChecker(policy)
	if err != nil {
		return 0, err
	}

	created := 0
	for created < maxCatchUp && IsDue(checker, last, start, now) {
		next := checker.Next(last, start)
		if err := create(next); err != nil {
			return created, fmt.Errorf("create occurrence %s: %w", next, err)
		}
		created++
		last = next
	}
	if created == maxCatchUp {
		p.logger.WarnContext(ctx, "Recurring catch-up limit reached",
			"limit", maxCatchUp,
			log.FieldDate, last.String())
	}
	return created, nil
}

func (p *RecurringProcessor) created(ctx context.Context, kind, groupID, sourceID string, date core.Date) {
	if p.config.Metrics != nil {
		p.config.Metrics.RecurringCreated.WithLabelValues(kind).Inc()
	}
	p.logger.InfoContext(ctx, "Created occurrence from recurring template",
		log.FieldGroupID, groupID,
		log.FieldKind, kind,
		"source_id", sourceID,
		log.FieldDate, date.String())
}

// Start begins the processing loop. Returns an error if already running.
func (p *RecurringProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("recurring processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Recurring processor started", "interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for the current run to finish.
func (p *RecurringProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Recurring processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Recurring processor stop timed out")
		return ctx.Err()
	}
}

func (p *RecurringProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RecurringProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *RecurringProcessor) runOnce(ctx context.Context) {
	if _, err := p.ProcessDue(ctx, p.config.Now()); err != nil {
		p.logger.ErrorContext(ctx, "Recurring processing failed", log.FieldError, err)
	}
}
