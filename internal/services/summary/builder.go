// Package summary reduces a user's financial records to the compact document used as
// model context and stored alongside generated insights.
package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// WindowMonths is the length of the summary window
const WindowMonths = 6

// Builder assembles FinancialSummary documents. It holds no state between calls; every
// Build reads fresh records.
type Builder struct {
	repo   database.FinanceReader
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a summary builder
func NewBuilder(repo database.FinanceReader, opts ...Option) *Builder {
	b := &Builder{
		repo:   repo,
		tracer: telemetry.Tracer("summary"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Window is the half-open date range [Start, End) a summary covers. End is midnight after
// the anchor day, so the anchor day itself is included.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowEndingOn returns the summary window whose last included day is anchor
func WindowEndingOn(anchor time.Time) Window {
	y, m, d := anchor.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Window{
		Start: day.AddDate(0, -WindowMonths, 0),
		End:   day.AddDate(0, 0, 1),
	}
}

// AnchorDay is the last day the window includes
func (w Window) AnchorDay() time.Time {
	return w.End.AddDate(0, 0, -1)
}

// records is the raw input to reduction
type records struct {
	accounts     []*models.Account
	transactions []*models.Transaction
	recurring    []*models.RecurringTransaction
	snapshots    []*models.NetWorthSnapshot
	goals        []*models.SavingsGoal
	holdings     []*models.InvestmentHolding
}

// Build reads the user's records for the six months ending at their latest transaction
// (or now, if they have none) and reduces them to a FinancialSummary
func (b *Builder) Build(ctx context.Context, userID uuid.UUID) (summary *models.FinancialSummary, err error) {
	ctx, span := b.tracer.Start(ctx, "summary.build", trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer func() { telemetry.EndSpan(span, err) }()

	now := b.now().UTC()
	anchor := now
	latest, err := b.repo.LatestTransactionDate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve summary window: %w", err)
	}
	if latest != nil {
		anchor = *latest
	}
	window := WindowEndingOn(anchor)

	recs, err := b.load(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("summary.transactions", len(recs.transactions)))

	summary = reduce(recs, window, now)
	return summary, nil
}

// load runs the independent reads concurrently and fails if any of them fails
func (b *Builder) load(ctx context.Context, userID uuid.UUID, w Window) (*records, error) {
	var recs records
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		recs.accounts, err = b.repo.NetWorthAccounts(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		recs.transactions, err = b.repo.TransactionsBetween(gctx, userID, w.Start, w.End)
		return err
	})
	g.Go(func() (err error) {
		recs.recurring, err = b.repo.ActiveRecurring(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		recs.snapshots, err = b.repo.SnapshotsBetween(gctx, userID, w.Start, w.End)
		return err
	})
	g.Go(func() (err error) {
		recs.goals, err = b.repo.SavingsGoals(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		recs.holdings, err = b.repo.HoldingsWithSecurities(gctx, userID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load financial records: %w", err)
	}
	return &recs, nil
}

func reduce(recs *records, w Window, now time.Time) *models.FinancialSummary {
	income, expenses := partition(recs.transactions)

	return &models.FinancialSummary{
		GeneratedAt: now,
		Timeframe: models.Timeframe{
			Start:  w.Start,
			End:    w.End.AddDate(0, 0, -1),
			Months: WindowMonths,
		},
		Income:        summarizeIncome(income),
		Expenses:      summarizeExpenses(expenses),
		Accounts:      summarizeAccounts(recs.accounts),
		Recurring:     summarizeRecurring(recs.recurring),
		NetWorthTrend: netWorthTrend(recs.snapshots, recs.accounts),
		Investments:   summarizeInvestments(recs.holdings),
		Goals:         goalProgress(recs.goals),
		Behavior:      behavior(expenses, w),
	}
}
