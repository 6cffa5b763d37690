// Package goals turns free text into savings goals.
package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/services/ai"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// ConfidenceThreshold is the lowest model confidence accepted as a parsed goal
	ConfidenceThreshold = 0.5
	// HistoryLimit is how many recent chat messages accompany the input
	HistoryLimit = 5
)

// Extractor reads a savings goal out of free text with one model call
type Extractor struct {
	provider ai.ModelProvider
	logger   *zap.Logger
	now      func() time.Time
}

// NewExtractor creates a goal extractor
func NewExtractor(provider ai.ModelProvider, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{provider: provider, logger: logger, now: time.Now}
}

// candidate is the schema the model must answer with
type candidate struct {
	Name         *string  `json:"name" validate:"omitempty,max=200"`
	TargetAmount *float64 `json:"target_amount" validate:"omitempty,gt=0"`
	Deadline     *string  `json:"deadline"`
	Confidence   *float64 `json:"confidence" validate:"required,min=0,max=1"`
}

// Extract returns the goal described by input, or nil when the model is not confident
// enough, answers with something that is not a goal, or fails. history holds prior chat
// lines, oldest first, and may be empty.
func (e *Extractor) Extract(ctx context.Context, input string, history []string) *models.ParsedGoalCandidate {
	content, err := e.provider.Complete(ctx, ai.CompletionRequest{
		Operation: "extract goal",
		System:    goalSystemPrompt,
		Messages:  []ai.Message{{Role: ai.RoleUser, Content: buildGoalPrompt(input, history, e.now())}},
		JSON:      true,
	})
	if err != nil {
		e.logger.Warn("goal_extraction_failed", zap.String("provider", e.provider.Name()), zap.Error(err))
		return nil
	}

	c, err := ai.DecodeJSON[candidate](content)
	if err != nil {
		e.logger.Warn("goal_output_invalid", zap.String("provider", e.provider.Name()), zap.Error(err))
		return nil
	}
	if *c.Confidence < ConfidenceThreshold {
		e.logger.Debug("goal_below_confidence", zap.Float64("confidence", *c.Confidence))
		return nil
	}

	out := &models.ParsedGoalCandidate{
		TargetAmount: c.TargetAmount,
		Deadline:     parseDeadline(c.Deadline),
		Confidence:   *c.Confidence,
		Name:         c.Name,
	}
	return out
}

// parseDeadline accepts YYYY-MM-DD and ignores anything else
func parseDeadline(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(*raw))
	if err != nil {
		return nil
	}
	return &d
}

// RenderHistory formats chat messages, oldest first, as "{role}: {content}" lines
func RenderHistory(messages []*models.ChatMessage) []string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return lines
}

// ParseResult is the outcome of Service.Parse. Confidence is 100 when a goal was created
// and 0 otherwise.
type ParseResult struct {
	Parsed     bool                `json:"parsed"`
	Goal       *models.SavingsGoal `json:"goal"`
	Confidence int                 `json:"confidence"`
}

// Service creates savings goals from free text
type Service struct {
	extractor *Extractor
	chats     database.ChatRepositoryInterface
	goals     database.GoalWriter
	logger    *zap.Logger
}

// NewService creates a goal service
func NewService(extractor *Extractor, chats database.ChatRepositoryInterface, goals database.GoalWriter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{extractor: extractor, chats: chats, goals: goals, logger: logger}
}

// Parse extracts a goal from input and, when it names both a goal and an amount,
// creates it for the user. A session the user does not own contributes no history.
func (s *Service) Parse(ctx context.Context, userID uuid.UUID, input string, sessionID *uuid.UUID) (*ParseResult, error) {
	var history []string
	if sessionID != nil {
		lines, err := s.history(ctx, userID, *sessionID)
		if err != nil {
			return nil, err
		}
		history = lines
	}

	parsed := s.extractor.Extract(ai.WithUserID(ctx, userID), input, history)
	if !parsed.Materializable() {
		return &ParseResult{}, nil
	}

	goal := &models.SavingsGoal{
		UserID:        userID,
		Name:          strings.TrimSpace(*parsed.Name),
		TargetAmount:  decimal.NewFromFloat(*parsed.TargetAmount).Round(2),
		CurrentAmount: decimal.Zero,
		Deadline:      parsed.Deadline,
		Status:        models.GoalStatusActive,
	}
	if err := s.goals.CreateSavingsGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to create savings goal: %w", err)
	}

	s.logger.Info("goal_created_from_text",
		zap.String("user_id", userID.String()),
		zap.String("goal_id", goal.ID.String()),
		zap.Float64("confidence", parsed.Confidence),
	)
	return &ParseResult{Parsed: true, Goal: goal, Confidence: 100}, nil
}

func (s *Service) history(ctx context.Context, userID, sessionID uuid.UUID) ([]string, error) {
	if _, err := s.chats.GetSession(ctx, userID, sessionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	messages, err := s.chats.RecentMessages(ctx, sessionID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return RenderHistory(messages), nil
}
