package database

import (
	"context"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
)

// FinanceReader is the read side of the user's financial records
type FinanceReader interface {
	LatestTransactionDate(ctx context.Context, userID uuid.UUID) (*time.Time, error)
	CountTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	NetWorthAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)
	TransactionsBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Transaction, error)
	ActiveRecurring(ctx context.Context, userID uuid.UUID) ([]*models.RecurringTransaction, error)
	SnapshotsBetween(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.NetWorthSnapshot, error)
	SavingsGoals(ctx context.Context, userID uuid.UUID) ([]*models.SavingsGoal, error)
	HoldingsWithSecurities(ctx context.Context, userID uuid.UUID) ([]*models.InvestmentHolding, error)
}

// GoalWriter persists savings goals
type GoalWriter interface {
	CreateSavingsGoal(ctx context.Context, goal *models.SavingsGoal) error
}

// ChatRepositoryInterface defines chat session and message operations
type ChatRepositoryInterface interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.ChatSession, error)
	DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error)
}

// InsightRepositoryInterface defines insight cache operations
type InsightRepositoryInterface interface {
	GetActive(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error)
	LatestGeneratedAt(ctx context.Context, userID uuid.UUID) (*time.Time, error)
	ReplaceActive(ctx context.Context, userID uuid.UUID, entries []*models.InsightCacheEntry, now time.Time) error
}

// UserActivityRepositoryInterface defines the interface for user activity repository operations
type UserActivityRepositoryInterface interface {
	UpdateLastInteraction(ctx context.Context, userID uuid.UUID) error
	UsersNeedingInsightRefresh(ctx context.Context, activeSince, staleBefore time.Time) ([]uuid.UUID, error)
}

// Ensure concrete types implement the interfaces
var (
	_ FinanceReader                   = (*FinanceRepository)(nil)
	_ GoalWriter                      = (*FinanceRepository)(nil)
	_ ChatRepositoryInterface         = (*ChatRepository)(nil)
	_ InsightRepositoryInterface      = (*InsightRepository)(nil)
	_ UserActivityRepositoryInterface = (*UserActivityRepository)(nil)
)
