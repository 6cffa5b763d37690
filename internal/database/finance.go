package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
)

// FinanceRepository reads the user's financial records. It is read-only; records are
// written by the import pipeline.
type FinanceRepository struct {
	db *DB
}

// NewFinanceRepository creates a new finance repository
func NewFinanceRepository(db *DB) *FinanceRepository {
	return &FinanceRepository{db: db}
}

// LatestTransactionDate returns the date of the user's most recent transaction, or nil if
// they have none
func (r *FinanceRepository) LatestTransactionDate(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT MAX(date) FROM transactions WHERE user_id = $1`, userID).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction date: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

// CountTransactionsSince counts the user's transactions dated on or after since
func (r *FinanceRepository) CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND date >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// NetWorthAccounts returns active accounts that are included in net worth
func (r *FinanceRepository) NetWorthAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	query := `
		SELECT id, user_id, name, type, balance, currency, include_in_net_worth, is_active, created_at, updated_at
		FROM accounts
		WHERE user_id = $1 AND is_active = TRUE AND include_in_net_worth = TRUE
		ORDER BY type, name
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer closeRows(rows)

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		a := &models.Account{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.Currency,
			&a.IncludeInNetWorth, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// TransactionsBetween returns transactions with start <= date < end, oldest first
func (r *FinanceRepository) TransactionsBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, account_id, date, amount, type, category, merchant, description, created_at
		FROM transactions
		WHERE user_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer closeRows(rows)

	txns := make([]*models.Transaction, 0)
	for rows.Next() {
		t := &models.Transaction{}
		var merchant sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Date, &t.Amount, &t.Type,
			&t.Category, &merchant, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if merchant.Valid {
			m := merchant.String
			t.Merchant = &m
		}
		t.Date = t.Date.UTC()
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

// ActiveRecurring returns the user's active recurring transactions
func (r *FinanceRepository) ActiveRecurring(ctx context.Context, userID uuid.UUID) ([]*models.RecurringTransaction, error) {
	query := `
		SELECT id, user_id, name, amount, type, frequency, category, next_date, is_active
		FROM recurring_transactions
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring transactions: %w", err)
	}
	defer closeRows(rows)

	items := make([]*models.RecurringTransaction, 0)
	for rows.Next() {
		rt := &models.RecurringTransaction{}
		var next sql.NullTime
		if err := rows.Scan(&rt.ID, &rt.UserID, &rt.Name, &rt.Amount, &rt.Type, &rt.Frequency,
			&rt.Category, &next, &rt.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan recurring transaction: %w", err)
		}
		if next.Valid {
			n := next.Time
			rt.NextDate = &n
		}
		items = append(items, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurring transactions: %w", err)
	}
	return items, nil
}

// SnapshotsBetween returns net worth snapshots with start <= date < end, oldest first
func (r *FinanceRepository) SnapshotsBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.NetWorthSnapshot, error) {
	query := `
		SELECT s.id, s.user_id, s.account_id, s.date, s.balance
		FROM net_worth_snapshots s
		WHERE s.user_id = $1 AND s.date >= $2 AND s.date < $3
		ORDER BY s.date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query net worth snapshots: %w", err)
	}
	defer closeRows(rows)

	snapshots := make([]*models.NetWorthSnapshot, 0)
	for rows.Next() {
		s := &models.NetWorthSnapshot{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.AccountID, &s.Date, &s.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan net worth snapshot: %w", err)
		}
		s.Date = s.Date.UTC()
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating net worth snapshots: %w", err)
	}
	return snapshots, nil
}

// SavingsGoals returns all of the user's savings goals
func (r *FinanceRepository) SavingsGoals(ctx context.Context, userID uuid.UUID) ([]*models.SavingsGoal, error) {
	query := `
		SELECT id, user_id, name, target_amount, current_amount, deadline, status, created_at, updated_at
		FROM savings_goals
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings goals: %w", err)
	}
	defer closeRows(rows)

	goals := make([]*models.SavingsGoal, 0)
	for rows.Next() {
		g := &models.SavingsGoal{}
		var deadline sql.NullTime
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.CurrentAmount,
			&deadline, &g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan savings goal: %w", err)
		}
		if deadline.Valid {
			d := deadline.Time
			g.Deadline = &d
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating savings goals: %w", err)
	}
	return goals, nil
}

// HoldingsWithSecurities returns the user's investment holdings joined to their securities
func (r *FinanceRepository) HoldingsWithSecurities(ctx context.Context, userID uuid.UUID) ([]*models.InvestmentHolding, error) {
	query := `
		SELECT h.id, h.user_id, h.account_id, h.quantity, h.cost_basis, h.value,
		       s.id, s.symbol, s.name, s.type
		FROM investment_holdings h
		JOIN securities s ON s.id = h.security_id
		WHERE h.user_id = $1
		ORDER BY h.value DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer closeRows(rows)

	holdings := make([]*models.InvestmentHolding, 0)
	for rows.Next() {
		h := &models.InvestmentHolding{}
		if err := rows.Scan(&h.ID, &h.UserID, &h.AccountID, &h.Quantity, &h.CostBasis, &h.Value,
			&h.Security.ID, &h.Security.Symbol, &h.Security.Name, &h.Security.Type); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return holdings, nil
}

// CreateSavingsGoal persists a new savings goal
func (r *FinanceRepository) CreateSavingsGoal(ctx context.Context, goal *models.SavingsGoal) error {
	if goal.ID == uuid.Nil {
		goal.ID = uuid.New()
	}
	if goal.Status == "" {
		goal.Status = models.GoalStatusActive
	}
	var deadline any
	if goal.Deadline != nil {
		deadline = *goal.Deadline
	}
	query := `
		INSERT INTO savings_goals (id, user_id, name, target_amount, current_amount, deadline, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, goal.ID, goal.UserID, goal.Name, goal.TargetAmount,
		goal.CurrentAmount, deadline, goal.Status).Scan(&goal.CreatedAt, &goal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create savings goal: %w", err)
	}
	return nil
}
