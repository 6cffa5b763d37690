package models

import "time"

// VolatilityLevel classifies month-to-month variation in spending
type VolatilityLevel string

const (
	VolatilityStable   VolatilityLevel = "stable"
	VolatilityModerate VolatilityLevel = "moderate"
	VolatilityHigh     VolatilityLevel = "high"
)

// FinancialSummary is the context document handed to the model. It is derived from the
// record store on every request and persisted verbatim as an insight snapshot.
type FinancialSummary struct {
	GeneratedAt   time.Time          `json:"generated_at"`
	Timeframe     Timeframe          `json:"timeframe"`
	Income        IncomeSummary      `json:"income"`
	Expenses      ExpenseSummary     `json:"expenses"`
	Accounts      AccountSummary     `json:"accounts"`
	Recurring     RecurringSummary   `json:"recurring"`
	NetWorthTrend NetWorthTrend      `json:"net_worth_trend"`
	Investments   InvestmentSummary  `json:"investments"`
	Goals         []GoalProgress     `json:"goals"`
	Behavior      BehaviorStatistics `json:"behavior"`
}

// Timeframe bounds the summary window
type Timeframe struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Months int       `json:"months"`
}

// IncomeSummary rolls up income transactions
type IncomeSummary struct {
	Total          float64          `json:"total"`
	MonthlyAverage float64          `json:"monthly_average"`
	TopSources     []CategoryAmount `json:"top_sources"`
}

// ExpenseSummary rolls up expense transactions
type ExpenseSummary struct {
	Total          float64          `json:"total"`
	MonthlyAverage float64          `json:"monthly_average"`
	Categories     []CategoryAmount `json:"categories"`
	TopMerchants   []MerchantAmount `json:"top_merchants"`
}

// CategoryAmount is a category total with its share of the parent total
type CategoryAmount struct {
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// MerchantAmount is total spend at one merchant
type MerchantAmount struct {
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
	Count    int     `json:"count"`
}

// AccountSummary is balances per account type and the resulting net worth
type AccountSummary struct {
	ByType   []AccountTypeBalance `json:"by_type"`
	NetWorth float64              `json:"net_worth"`
}

// AccountTypeBalance is the summed balance of one account type
type AccountTypeBalance struct {
	Type    AccountType `json:"type"`
	Balance float64     `json:"balance"`
	Count   int         `json:"count"`
}

// RecurringSummary rolls up active recurring costs
type RecurringSummary struct {
	MonthlyTotal float64         `json:"monthly_total"`
	Count        int             `json:"count"`
	Items        []RecurringItem `json:"items"`
}

// RecurringItem is one recurring cost normalised to a monthly amount
type RecurringItem struct {
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	Amount            float64   `json:"amount"`
	Frequency         Frequency `json:"frequency"`
	MonthlyEquivalent float64   `json:"monthly_equivalent"`
}

// NetWorthTrend compares net worth at the start and end of the window
type NetWorthTrend struct {
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// InvestmentSummary rolls up holdings
type InvestmentSummary struct {
	TotalValue float64           `json:"total_value"`
	Holdings   []HoldingSummary  `json:"holdings"`
	Allocation []AllocationShare `json:"allocation"`
}

// HoldingSummary is one holding and its share of the portfolio
type HoldingSummary struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
}

// AllocationShare is portfolio value grouped by security type
type AllocationShare struct {
	Type       string  `json:"type"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
}

// GoalProgress is a savings goal with its completion percentage
type GoalProgress struct {
	Name            string     `json:"name"`
	TargetAmount    float64    `json:"target_amount"`
	CurrentAmount   float64    `json:"current_amount"`
	ProgressPercent float64    `json:"progress_percent"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	Status          GoalStatus `json:"status"`
}

// BehaviorStatistics describes spending habits
type BehaviorStatistics struct {
	AverageTransactionSize float64         `json:"average_transaction_size"`
	MonthlyExpenseTotals   []float64       `json:"monthly_expense_totals"`
	SpendingVolatility     VolatilityLevel `json:"spending_volatility"`
	CoefficientOfVariation float64         `json:"coefficient_of_variation"`
	HighestSpendingWeekday string          `json:"highest_spending_weekday,omitempty"`
}
