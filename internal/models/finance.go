package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies a financial account
type AccountType string

const (
	AccountTypeChecking   AccountType = "CHECKING"
	AccountTypeSavings    AccountType = "SAVINGS"
	AccountTypeCreditCard AccountType = "CREDIT_CARD"
	AccountTypeInvestment AccountType = "INVESTMENT"
	AccountTypeRetirement AccountType = "RETIREMENT"
	AccountTypeLoan       AccountType = "LOAN"
	AccountTypeMortgage   AccountType = "MORTGAGE"
	AccountTypeOther      AccountType = "OTHER"
)

// IsLiability reports whether balances of this account type count against net worth
func (t AccountType) IsLiability() bool {
	switch t {
	case AccountTypeCreditCard, AccountTypeLoan, AccountTypeMortgage:
		return true
	default:
		return false
	}
}

// Account is a user-owned financial account
type Account struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Name              string          `json:"name"`
	Type              AccountType     `json:"type"`
	Balance           decimal.Decimal `json:"balance"`
	Currency          string          `json:"currency"`
	IncludeInNetWorth bool            `json:"include_in_net_worth"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TransactionType is the declared direction of a transaction
type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "INCOME"
	TransactionTypeExpense  TransactionType = "EXPENSE"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// Transaction is a single ledger entry. Amount is stored unsigned; Type carries direction.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	Merchant    *string         `json:"merchant,omitempty"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Frequency is how often a recurring transaction repeats
type Frequency string

const (
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

// MonthlyFactor returns the multiplier that converts one occurrence into a monthly amount
func (f Frequency) MonthlyFactor() decimal.Decimal {
	switch f {
	case FrequencyWeekly:
		return decimal.NewFromInt(52).Div(decimal.NewFromInt(12))
	case FrequencyBiweekly:
		return decimal.NewFromInt(26).Div(decimal.NewFromInt(12))
	case FrequencyQuarterly:
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(3))
	case FrequencyYearly:
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(12))
	default:
		return decimal.NewFromInt(1)
	}
}

// RecurringTransaction is a detected or user-declared repeating charge or deposit
type RecurringTransaction struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Type      TransactionType `json:"type"`
	Frequency Frequency       `json:"frequency"`
	Category  string          `json:"category"`
	NextDate  *time.Time      `json:"next_date,omitempty"`
	IsActive  bool            `json:"is_active"`
}

// NetWorthSnapshot is a point-in-time balance of one account
type NetWorthSnapshot struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Date      time.Time       `json:"date"`
	Balance   decimal.Decimal `json:"balance"`
}

// GoalStatus is the lifecycle state of a savings goal
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "ACTIVE"
	GoalStatusCompleted GoalStatus = "COMPLETED"
	GoalStatusPaused    GoalStatus = "PAUSED"
)

// SavingsGoal is a user's savings target
type SavingsGoal struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	Status        GoalStatus      `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Security is the instrument behind an investment holding
type Security struct {
	ID     uuid.UUID `json:"id"`
	Symbol string    `json:"symbol"`
	Name   string    `json:"name"`
	Type   string    `json:"type"` // e.g. "equity", "etf", "bond", "cash"
}

// InvestmentHolding is a position in one security
type InvestmentHolding struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	Value     decimal.Decimal `json:"value"`
	Security  Security        `json:"security"`
}
