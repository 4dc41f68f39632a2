// Package http exposes the household API as JSON over HTTP.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"delat/internal/core"
	"delat/internal/dedup"
	"delat/internal/incomesplit"
	"delat/internal/log"
	"delat/internal/metrics"
	"delat/internal/middleware/ratelimit"
	"delat/internal/middleware/security"
	"delat/internal/middleware/trace"
	"delat/internal/services"
)

// Household is the use-case layer the handlers call into.
type Household interface {
	CreateGroup(ctx context.Context, name string) (core.Group, error)
	AddMember(ctx context.Context, groupID, name string) (core.Member, error)
	Members(ctx context.Context, groupID string) ([]core.Member, error)

	BalanceSnapshot(ctx context.Context, groupID string, year int, month time.Month) (services.Snapshot, error)
	IncomeOverview(ctx context.Context, groupID, personA, personB string, year int, month time.Month) (incomesplit.Result, error)

	Expenses(ctx context.Context, groupID string, year int, month time.Month) ([]core.Expense, error)
	Incomes(ctx context.Context, groupID string, year int, month time.Month) ([]core.Income, error)
	Settlements(ctx context.Context, groupID string, year int, month time.Month) ([]core.Settlement, error)

	CheckExpense(ctx context.Context, groupID string, e core.Expense) ([]dedup.Match, error)
	CheckIncome(ctx context.Context, groupID string, inc core.Income) ([]dedup.Match, error)
	AddExpense(ctx context.Context, groupID string, e core.Expense, confirm bool) (string, []dedup.Match, error)
	AddIncome(ctx context.Context, groupID string, inc core.Income, confirm bool) (string, []dedup.Match, error)
	AddSettlement(ctx context.Context, groupID string, st core.Settlement) (string, error)
	DeleteRecord(ctx context.Context, groupID, kind, id string, date core.Date) error
}

type Options struct {
	RateLimitPerMinute int
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
	// Now is the clock used for default months. Defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	household   Household
	rateLimiter *ratelimit.Limiter
	metrics     *metrics.Metrics
	ready       func(ctx context.Context) error
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, household Household, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limits := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limits.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		household:   household,
		rateLimiter: ratelimit.NewLimiter(limits),
		metrics:     opts.Metrics,
		ready:       opts.Ready,
		now:         now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /groups", s.handleCreateGroup)
	mux.HandleFunc("GET /groups/{group}/members", s.handleListMembers)
	mux.HandleFunc("POST /groups/{group}/members", s.handleAddMember)

	mux.HandleFunc("GET /groups/{group}/balances", s.handleBalances)
	mux.HandleFunc("GET /groups/{group}/income-settlement", s.handleIncomeSettlement)

	mux.HandleFunc("GET /groups/{group}/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /groups/{group}/expenses", s.handleCreateExpense)
	mux.HandleFunc("POST /groups/{group}/expenses/check", s.handleCheckExpense)
	mux.HandleFunc("GET /groups/{group}/incomes", s.handleListIncomes)
	mux.HandleFunc("POST /groups/{group}/incomes", s.handleCreateIncome)
	mux.HandleFunc("POST /groups/{group}/incomes/check", s.handleCheckIncome)
	mux.HandleFunc("GET /groups/{group}/settlements", s.handleListSettlements)
	mux.HandleFunc("POST /groups/{group}/settlements", s.handleCreateSettlement)
	mux.HandleFunc("DELETE /groups/{group}/{kind}/{id}", s.handleDeleteRecord)

	var observe trace.Observer
	if s.metrics != nil {
		observe = s.metrics.ObserveHTTP
	}
	limited := s.rateLimiter.Middleware(security.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		requestLogger(r).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, security.ClientIP(r),
			"method", r.Method,
			"path", r.URL.Path)
		TooManyRequestsError().Write(w)
	})(mux)
	traced := trace.NewMiddleware(logger, security.ClientIP, observe).Middleware(limited)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           headers.Middleware(traced),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			requestLogger(r).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

// month resolves the year and month query parameters, writing a 400 when
// they are malformed.
func (s *Server) month(w http.ResponseWriter, r *http.Request) (MonthParams, bool) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return MonthParams{}, false
	}
	return params, true
}

func createdResponse(w http.ResponseWriter, r *http.Request, id string) {
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", r.URL.Path+"/"+id).
		Body(createdJSON{ID: id}).
		Write(w)
}
