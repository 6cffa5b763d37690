// Package insights generates and caches advisory insights about a user's finances.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MinRecentTransactions is how many transactions a user needs inside RecentWindow
	// before insights are generated
	MinRecentTransactions = 10
	// RecentWindow is the trailing period MinRecentTransactions is counted over
	RecentWindow = 60 * 24 * time.Hour
)

// SummaryBuilder produces the context document insights are generated from
type SummaryBuilder interface {
	Build(ctx context.Context, userID uuid.UUID) (*models.FinancialSummary, error)
}

// Manager reads and regenerates a user's insight cache
type Manager struct {
	finance  database.FinanceReader
	store    database.InsightRepositoryInterface
	builder  SummaryBuilder
	provider ai.ModelProvider
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates an insight manager
func NewManager(finance database.FinanceReader, store database.InsightRepositoryInterface, builder SummaryBuilder, provider ai.ModelProvider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		finance:  finance,
		store:    store,
		builder:  builder,
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// GetActive returns the user's active insights, most important first. A user with no
// insights gets an empty slice.
func (m *Manager) GetActive(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error) {
	entries, err := m.store.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active insights: %w", err)
	}
	if entries == nil {
		entries = []*models.InsightCacheEntry{}
	}
	return entries, nil
}

// Regenerate replaces the user's active insights with a fresh generation. Users without
// enough recent activity, and model answers that fail validation, yield an empty slice
// and leave the cache untouched. A failed model call is returned as an error.
func (m *Manager) Regenerate(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error) {
	now := m.now().UTC()

	count, err := m.finance.CountTransactionsSince(ctx, userID, now.Add(-RecentWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent transactions: %w", err)
	}
	if count < MinRecentTransactions {
		m.logger.Info("insight_regeneration_skipped",
			zap.String("user_id", userID.String()),
			zap.Int("recent_transactions", count),
			zap.Int("required", MinRecentTransactions),
		)
		return []*models.InsightCacheEntry{}, nil
	}

	summary, err := m.builder.Build(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build financial summary: %w", err)
	}
	snapshot, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal financial summary: %w", err)
	}

	content, err := m.provider.Complete(ai.WithUserID(ctx, userID), ai.CompletionRequest{
		Operation: "generate insights",
		System:    insightSystemPrompt,
		Messages:  []ai.Message{{Role: ai.RoleUser, Content: buildInsightPrompt(snapshot, now)}},
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate insights: %w", err)
	}

	batch, err := ai.DecodeJSON[insightBatch](content)
	if err != nil {
		m.logger.Warn("insight_output_invalid",
			zap.String("user_id", userID.String()),
			zap.String("provider", m.provider.Name()),
			zap.Error(err),
		)
		return []*models.InsightCacheEntry{}, nil
	}

	entries := batch.entries(snapshot)
	if err := m.store.ReplaceActive(ctx, userID, entries, now); err != nil {
		return nil, fmt.Errorf("failed to store insights: %w", err)
	}

	m.logger.Info("insights_regenerated",
		zap.String("user_id", userID.String()),
		zap.Int("count", len(entries)),
	)
	return entries, nil
}

// insightBatch is the schema the model must answer with
type insightBatch struct {
	Insights []generatedInsight `json:"insights" validate:"required,min=3,max=5,dive"`
}

type generatedInsight struct {
	Category string `json:"category" validate:"required,insight_category"`
	Title    string `json:"title" validate:"required,notblank,max=120"`
	Body     string `json:"body" validate:"required,notblank,max=1000"`
	Priority int    `json:"priority" validate:"min=1,max=5"`
}

// entries converts the batch to cache entries ordered by priority
func (b *insightBatch) entries(snapshot json.RawMessage) []*models.InsightCacheEntry {
	out := make([]*models.InsightCacheEntry, 0, len(b.Insights))
	for _, in := range b.Insights {
		out = append(out, &models.InsightCacheEntry{
			Category: models.InsightCategory(in.Category),
			Title:    in.Title,
			Body:     in.Body,
			Priority: in.Priority,
			Snapshot: snapshot,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
