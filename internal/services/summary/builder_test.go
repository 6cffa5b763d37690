package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinance struct {
	latest       *time.Time
	accounts     []*models.Account
	transactions []*models.Transaction
	recurring    []*models.RecurringTransaction
	snapshots    []*models.NetWorthSnapshot
	goals        []*models.SavingsGoal
	holdings     []*models.InvestmentHolding
	failOn       string

	gotStart, gotEnd time.Time
}

func (f *fakeFinance) fail(op string) error {
	if f.failOn == op {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeFinance) LatestTransactionDate(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	return f.latest, f.fail("latest")
}

func (f *fakeFinance) CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return len(f.transactions), f.fail("count")
}

func (f *fakeFinance) NetWorthAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	return f.accounts, f.fail("accounts")
}

func (f *fakeFinance) TransactionsBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Transaction, error) {
	f.gotStart, f.gotEnd = start, end
	return f.transactions, f.fail("transactions")
}

func (f *fakeFinance) ActiveRecurring(ctx context.Context, userID uuid.UUID) ([]*models.RecurringTransaction, error) {
	return f.recurring, f.fail("recurring")
}

func (f *fakeFinance) SnapshotsBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.NetWorthSnapshot, error) {
	return f.snapshots, f.fail("snapshots")
}

func (f *fakeFinance) SavingsGoals(ctx context.Context, userID uuid.UUID) ([]*models.SavingsGoal, error) {
	return f.goals, f.fail("goals")
}

func (f *fakeFinance) HoldingsWithSecurities(ctx context.Context, userID uuid.UUID) ([]*models.InvestmentHolding, error) {
	return f.holdings, f.fail("holdings")
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func expense(on time.Time, amount int64, category, merchant string) *models.Transaction {
	t := &models.Transaction{
		ID:       uuid.New(),
		Date:     on,
		Amount:   decimal.NewFromInt(amount),
		Type:     models.TransactionTypeExpense,
		Category: category,
	}
	if merchant != "" {
		t.Merchant = &merchant
	}
	return t
}

func income(on time.Time, amount int64, category string) *models.Transaction {
	return &models.Transaction{
		ID:       uuid.New(),
		Date:     on,
		Amount:   decimal.NewFromInt(amount),
		Type:     models.TransactionTypeIncome,
		Category: category,
	}
}

func TestWindowEndingOn(t *testing.T) {
	t.Parallel()

	w := WindowEndingOn(time.Date(2026, time.March, 15, 17, 30, 0, 0, time.UTC))
	assert.Equal(t, date(2025, time.September, 15), w.Start)
	assert.Equal(t, date(2026, time.March, 16), w.End)
}

func TestBuilder_Build_AnchorsAtLatestTransaction(t *testing.T) {
	t.Parallel()

	latest := date(2026, time.January, 31)
	repo := &fakeFinance{latest: &latest}
	now := date(2026, time.October, 16)

	b := NewBuilder(repo, WithClock(func() time.Time { return now }))
	s, err := b.Build(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, date(2025, time.July, 31), repo.gotStart)
	assert.Equal(t, date(2026, time.February, 1), repo.gotEnd)
	assert.Equal(t, latest, s.Timeframe.End)
	assert.Equal(t, WindowMonths, s.Timeframe.Months)
	assert.Equal(t, now, s.GeneratedAt)
}

func TestBuilder_Build_NoTransactionsUsesNow(t *testing.T) {
	t.Parallel()

	repo := &fakeFinance{}
	now := time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)

	s, err := NewBuilder(repo, WithClock(func() time.Time { return now })).Build(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, date(2026, time.October, 17), repo.gotEnd)
	assert.Empty(t, s.Expenses.Categories)
	assert.Empty(t, s.Behavior.HighestSpendingWeekday)
	assert.Equal(t, models.VolatilityStable, s.Behavior.SpendingVolatility)
	assert.Zero(t, s.Behavior.AverageTransactionSize)
	assert.Len(t, s.Behavior.MonthlyExpenseTotals, WindowMonths)
}

func TestBuilder_Build_ReadFailure(t *testing.T) {
	t.Parallel()

	for _, op := range []string{"latest", "accounts", "transactions", "recurring", "snapshots", "goals", "holdings"} {
		t.Run(op, func(t *testing.T) {
			t.Parallel()
			repo := &fakeFinance{failOn: op}
			_, err := NewBuilder(repo).Build(context.Background(), uuid.New())
			assert.Error(t, err)
		})
	}
}

func TestBuilder_Build_Expenses(t *testing.T) {
	t.Parallel()

	latest := date(2026, time.June, 30)
	repo := &fakeFinance{
		latest: &latest,
		transactions: []*models.Transaction{
			expense(date(2026, time.June, 1), 300, "Groceries", "Market"),
			expense(date(2026, time.June, 8), 100, "Groceries", "Market"),
			expense(date(2026, time.June, 10), 200, "Dining", "Bistro"),
			expense(date(2026, time.June, 12), 400, "Rent", ""),
			income(date(2026, time.June, 15), 5000, "Salary"),
			{Date: date(2026, time.June, 16), Amount: decimal.NewFromInt(999), Type: models.TransactionTypeTransfer},
		},
	}

	s, err := NewBuilder(repo).Build(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 1000.0, s.Expenses.Total)
	assert.Equal(t, 5000.0, s.Income.Total)
	assert.InDelta(t, 833.33, s.Income.MonthlyAverage, 0.001)

	var sum float64
	for _, c := range s.Expenses.Categories {
		sum += c.Percentage
	}
	assert.InDelta(t, 100.0, sum, 1e-9)
	require.Len(t, s.Expenses.Categories, 3)
	assert.Equal(t, "Groceries", s.Expenses.Categories[0].Category)
	assert.Equal(t, 2, s.Expenses.Categories[0].Count)

	// the merchantless rent payment is not a merchant
	require.Len(t, s.Expenses.TopMerchants, 2)
	assert.Equal(t, "Market", s.Expenses.TopMerchants[0].Merchant)
	assert.Equal(t, 400.0, s.Expenses.TopMerchants[0].Amount)

	assert.Equal(t, 250.0, s.Behavior.AverageTransactionSize)
}

func TestSummarizeExpenses_CategoryShares(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		amounts map[string]int64
		want    map[string]float64
	}{
		{
			name:    "three equal categories",
			amounts: map[string]int64{"A": 10, "B": 10, "C": 10},
			want:    map[string]float64{"A": 33.34, "B": 33.33, "C": 33.33},
		},
		{
			name:    "two thirds split",
			amounts: map[string]int64{"Rent": 200, "Food": 100},
			want:    map[string]float64{"Rent": 66.67, "Food": 33.33},
		},
		{
			name:    "seven equal categories",
			amounts: map[string]int64{"A": 1, "B": 1, "C": 1, "D": 1, "E": 1, "F": 1, "G": 1},
			want:    map[string]float64{"A": 14.29, "B": 14.29, "C": 14.29, "D": 14.29, "E": 14.28, "F": 14.28, "G": 14.28},
		},
		{
			name:    "single category",
			amounts: map[string]int64{"Rent": 1234},
			want:    map[string]float64{"Rent": 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var txns []*models.Transaction
			for category, amount := range tt.amounts {
				txns = append(txns, expense(date(2026, time.June, 1), amount, category, ""))
			}

			got := summarizeExpenses(txns)

			require.Len(t, got.Categories, len(tt.want))
			var sum float64
			for _, c := range got.Categories {
				sum += c.Percentage
				assert.Equal(t, tt.want[c.Category], c.Percentage, "category %s", c.Category)
			}
			assert.InDelta(t, 100.0, sum, 1e-9)
		})
	}
}

func TestSummarizeExpenses_NoExpenses(t *testing.T) {
	t.Parallel()

	got := summarizeExpenses(nil)
	assert.Empty(t, got.Categories)
	assert.Equal(t, 0.0, got.Total)
}

func TestMonthlyBuckets_CoverWindowAtMonthEnd(t *testing.T) {
	t.Parallel()

	// six months before Aug 30 is Feb 30, which normalises to Mar 2
	w := WindowEndingOn(date(2026, time.August, 30))
	require.Equal(t, date(2026, time.March, 2), w.Start)

	txns := []*models.Transaction{
		expense(w.Start, 70, "Rent", ""),
		expense(date(2026, time.March, 29), 30, "Rent", ""),
		expense(date(2026, time.August, 30), 5, "Food", ""),
	}

	got := monthlyBuckets(txns, w)

	var sum float64
	for _, b := range got {
		sum += b.InexactFloat64()
	}
	assert.Equal(t, 105.0, sum, "every expense inside the window lands in a bucket")
	assert.Equal(t, 100.0, got[0].InexactFloat64())
	assert.Equal(t, 5.0, got[WindowMonths-1].InexactFloat64())
}

func TestHighestSpendingWeekday(t *testing.T) {
	t.Parallel()

	// 2026-06-01 is a Monday
	txns := []*models.Transaction{
		expense(date(2026, time.June, 1), 50, "Food", ""),
		expense(date(2026, time.June, 8), 60, "Food", ""),
		expense(date(2026, time.June, 5), 100, "Fun", ""),
	}
	assert.Equal(t, "Monday", highestSpendingWeekday(txns))
	assert.Equal(t, "", highestSpendingWeekday(nil))
}

func TestBehavior_Volatility(t *testing.T) {
	t.Parallel()

	w := WindowEndingOn(date(2026, time.June, 30))

	tests := []struct {
		name    string
		amounts [WindowMonths]int64
		want    models.VolatilityLevel
	}{
		{name: "flat spending", amounts: [WindowMonths]int64{1000, 1000, 1000, 1000, 1000, 1000}, want: models.VolatilityStable},
		{name: "one spike", amounts: [WindowMonths]int64{500, 500, 500, 500, 500, 3000}, want: models.VolatilityHigh},
		{name: "moderate swing", amounts: [WindowMonths]int64{800, 1200, 800, 1200, 800, 1200}, want: models.VolatilityModerate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var txns []*models.Transaction
			for i, amount := range tt.amounts {
				// bucket i counts back from the anchor day; place one expense mid-bucket
				on := w.AnchorDay().AddDate(0, -(WindowMonths - i), 10)
				txns = append(txns, expense(on, amount, "Spending", ""))
			}
			got := behavior(txns, w)
			assert.Equal(t, tt.want, got.SpendingVolatility)
			for i, amount := range tt.amounts {
				assert.Equal(t, float64(amount), got.MonthlyExpenseTotals[i], "bucket %d", i)
			}
		})
	}
}

func TestCoefficientOfVariation_ZeroMean(t *testing.T) {
	t.Parallel()
	assert.Zero(t, coefficientOfVariation([]float64{0, 0, 0}))
	assert.Zero(t, coefficientOfVariation(nil))
}

func TestSummarizeAccounts_NetWorth(t *testing.T) {
	t.Parallel()

	accounts := []*models.Account{
		{ID: uuid.New(), Type: models.AccountTypeChecking, Balance: decimal.NewFromInt(5000)},
		{ID: uuid.New(), Type: models.AccountTypeSavings, Balance: decimal.NewFromInt(10000)},
		{ID: uuid.New(), Type: models.AccountTypeCreditCard, Balance: decimal.NewFromInt(-1500)},
		{ID: uuid.New(), Type: models.AccountTypeLoan, Balance: decimal.NewFromInt(3500)},
	}

	got := summarizeAccounts(accounts)
	assert.Equal(t, 10000.0, got.NetWorth)
	assert.Len(t, got.ByType, 4)
}

func TestNetWorthTrend(t *testing.T) {
	t.Parallel()

	checking := &models.Account{ID: uuid.New(), Type: models.AccountTypeChecking}
	card := &models.Account{ID: uuid.New(), Type: models.AccountTypeCreditCard}

	tests := []struct {
		name      string
		snapshots []*models.NetWorthSnapshot
		validate  func(*testing.T, models.NetWorthTrend)
	}{
		{
			name: "growth",
			snapshots: []*models.NetWorthSnapshot{
				{AccountID: checking.ID, Date: date(2026, time.January, 1), Balance: decimal.NewFromInt(1000)},
				{AccountID: card.ID, Date: date(2026, time.January, 1), Balance: decimal.NewFromInt(200)},
				{AccountID: checking.ID, Date: date(2026, time.March, 1), Balance: decimal.NewFromInt(1500)},
				{AccountID: card.ID, Date: date(2026, time.March, 1), Balance: decimal.NewFromInt(100)},
			},
			validate: func(t *testing.T, got models.NetWorthTrend) {
				if got.Start != 800 || got.End != 1400 {
					t.Errorf("Expected 800 -> 1400, got %v -> %v", got.Start, got.End)
				}
				if got.ChangePercent != 75 {
					t.Errorf("Expected change percent 75, got %v", got.ChangePercent)
				}
			},
		},
		{
			name: "zero start",
			snapshots: []*models.NetWorthSnapshot{
				{AccountID: checking.ID, Date: date(2026, time.January, 1), Balance: decimal.Zero},
				{AccountID: checking.ID, Date: date(2026, time.March, 1), Balance: decimal.NewFromInt(500)},
			},
			validate: func(t *testing.T, got models.NetWorthTrend) {
				if got.ChangePercent != 0 {
					t.Errorf("Expected change percent 0, got %v", got.ChangePercent)
				}
				if got.Change != 500 {
					t.Errorf("Expected change 500, got %v", got.Change)
				}
			},
		},
		{
			name: "no snapshots",
			validate: func(t *testing.T, got models.NetWorthTrend) {
				if got != (models.NetWorthTrend{}) {
					t.Errorf("Expected zero trend, got %+v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, netWorthTrend(tt.snapshots, []*models.Account{checking, card}))
		})
	}
}

func TestSummarizeRecurring(t *testing.T) {
	t.Parallel()

	items := []*models.RecurringTransaction{
		{Name: "Gym", Amount: decimal.NewFromInt(50), Type: models.TransactionTypeExpense, Frequency: models.FrequencyMonthly, IsActive: true},
		{Name: "Insurance", Amount: decimal.NewFromInt(1200), Type: models.TransactionTypeExpense, Frequency: models.FrequencyYearly, IsActive: true},
		{Name: "Paycheck", Amount: decimal.NewFromInt(2000), Type: models.TransactionTypeIncome, Frequency: models.FrequencyBiweekly, IsActive: true},
		{Name: "Old", Amount: decimal.NewFromInt(10), Type: models.TransactionTypeExpense, Frequency: models.FrequencyMonthly},
	}

	got := summarizeRecurring(items)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, 150.0, got.MonthlyTotal)
	assert.Equal(t, "Insurance", got.Items[0].Name)
}

func TestSummarizeInvestments(t *testing.T) {
	t.Parallel()

	holdings := []*models.InvestmentHolding{
		{Value: decimal.NewFromInt(6000), Security: models.Security{Symbol: "VTI", Type: "etf"}},
		{Value: decimal.NewFromInt(3000), Security: models.Security{Symbol: "BND", Type: "bond"}},
		{Value: decimal.NewFromInt(1000), Security: models.Security{Symbol: "VXUS", Type: "etf"}},
	}

	got := summarizeInvestments(holdings)
	assert.Equal(t, 10000.0, got.TotalValue)
	require.Len(t, got.Allocation, 2)
	assert.Equal(t, "etf", got.Allocation[0].Type)
	assert.Equal(t, 70.0, got.Allocation[0].Percentage)
	assert.Equal(t, 60.0, got.Holdings[0].Percentage)
}

func TestGoalProgress(t *testing.T) {
	t.Parallel()

	got := goalProgress([]*models.SavingsGoal{
		{Name: "Emergency fund", TargetAmount: decimal.NewFromInt(10000), CurrentAmount: decimal.NewFromInt(2500)},
		{Name: "Unset", TargetAmount: decimal.Zero, CurrentAmount: decimal.NewFromInt(10)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, 25.0, got[0].ProgressPercent)
	assert.Zero(t, got[1].ProgressPercent)
}
