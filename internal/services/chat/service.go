// Package chat runs advisor conversations: session bookkeeping, the daily message quota
// and the streamed model turn.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/services/ai"
	"github.com/benvon/finance-advisor/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultHistoryLimit is how many stored messages are loaded for a streamed turn
	DefaultHistoryLimit = 20
	// DefaultStreamTimeout bounds one streamed model call
	DefaultStreamTimeout = 120 * time.Second
	// DefaultTitle names sessions created without a title
	DefaultTitle = "New conversation"

	persistTimeout = 10 * time.Second
)

// ErrSessionNotFound is returned for sessions that do not exist or belong to someone else
var ErrSessionNotFound = errors.New("chat session not found")

// RateLimitError is returned when the user has used up today's messages
type RateLimitError struct {
	ResetAt time.Time
	Limit   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily message limit of %d reached, resets at %s", e.Limit, e.ResetAt.Format(time.RFC3339))
}

// UsageLimiter is the daily message quota
type UsageLimiter interface {
	CheckLimit(ctx context.Context, userID uuid.UUID) (*models.UsageStatus, error)
	IncrementUsage(ctx context.Context, userID uuid.UUID) (int, error)
}

// SummaryBuilder produces the financial context for a turn
type SummaryBuilder interface {
	Build(ctx context.Context, userID uuid.UUID) (*models.FinancialSummary, error)
}

// Config tunes the streamed turn
type Config struct {
	HistoryLimit  int
	StreamTimeout time.Duration
}

// Service implements chat sessions and turns
type Service struct {
	chats    database.ChatRepositoryInterface
	limiter  UsageLimiter
	builder  SummaryBuilder
	provider ai.ModelProvider
	logger   *zap.Logger
	tracer   trace.Tracer
	cfg      Config
	now      func() time.Time
}

// NewService creates a chat service. Zero Config fields take their defaults.
func NewService(chats database.ChatRepositoryInterface, limiter UsageLimiter, builder SummaryBuilder, provider ai.ModelProvider, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = DefaultStreamTimeout
	}
	return &Service{
		chats:    chats,
		limiter:  limiter,
		builder:  builder,
		provider: provider,
		logger:   logger,
		tracer:   telemetry.Tracer("chat"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateSession starts a new conversation for the user
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID, title string) (*models.ChatSession, error) {
	if title == "" {
		title = DefaultTitle
	}
	session := &models.ChatSession{ID: uuid.New(), UserID: userID, Title: title}
	if err := s.chats.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return session, nil
}

// ListSessions returns the user's sessions, most recently active first
func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.ChatSession, error) {
	sessions, err := s.chats.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*models.ChatSession{}
	}
	return sessions, nil
}

// Messages returns up to limit of the session's most recent messages, oldest first
func (s *Service) Messages(ctx context.Context, userID, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	if _, err := s.session(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.chats.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat messages: %w", err)
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	return messages, nil
}

// DeleteSession removes a session and its messages
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := s.chats.DeleteSession(ctx, userID, sessionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	return nil
}

// Usage reports the user's quota for today
func (s *Service) Usage(ctx context.Context, userID uuid.UUID) (*models.UsageStatus, error) {
	return s.limiter.CheckLimit(ctx, userID)
}

// SendMessage records a user turn. The quota is checked before ownership so a user over
// the limit learns nothing about session ids. The counter is incremented only after the
// message is stored.
func (s *Service) SendMessage(ctx context.Context, userID, sessionID uuid.UUID, content string) (*models.ChatMessage, error) {
	if err := s.checkLimit(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.session(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      models.MessageRoleUser,
		Content:   content,
	}
	if err := s.chats.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store chat message: %w", err)
	}

	if _, err := s.limiter.IncrementUsage(ctx, userID); err != nil {
		s.logger.Warn("usage_increment_failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
	return msg, nil
}

// Turn is a streamed reply that has passed every pre-stream check
type Turn struct {
	UserID  uuid.UUID
	Session *models.ChatSession
	Content string
}

// BeginTurn runs the checks that must pass before a stream is opened: quota, then
// session ownership. It does not consume quota; SendMessage already has.
//
// The message being answered was counted when it was sent, so a user who has just sent
// their last message of the day is at the limit. Their stream is still allowed when the
// session ends with that unanswered message and content matches it.
func (s *Service) BeginTurn(ctx context.Context, userID, sessionID uuid.UUID, content string) (*Turn, error) {
	status, err := s.limiter.CheckLimit(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !status.Allowed {
		if status.Used > status.Limit {
			return nil, rateLimited(status)
		}
		session, err := s.chats.GetSession(ctx, userID, sessionID)
		if err != nil {
			// over the limit, so say nothing about the session
			return nil, rateLimited(status)
		}
		pending, err := s.awaitingReply(ctx, sessionID, content)
		if err != nil {
			return nil, err
		}
		if !pending {
			return nil, rateLimited(status)
		}
		return &Turn{UserID: userID, Session: session, Content: content}, nil
	}

	session, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &Turn{UserID: userID, Session: session, Content: content}, nil
}

// awaitingReply reports whether the session's newest message is a user message with
// content
func (s *Service) awaitingReply(ctx context.Context, sessionID uuid.UUID, content string) (bool, error) {
	last, err := s.chats.RecentMessages(ctx, sessionID, 1)
	if err != nil {
		return false, fmt.Errorf("failed to load chat history: %w", err)
	}
	if len(last) == 0 {
		return false, nil
	}
	msg := last[len(last)-1]
	return msg.Role == models.MessageRoleUser && msg.Content == content, nil
}

func (s *Service) checkLimit(ctx context.Context, userID uuid.UUID) error {
	status, err := s.limiter.CheckLimit(ctx, userID)
	if err != nil {
		return err
	}
	if !status.Allowed {
		return rateLimited(status)
	}
	return nil
}

func rateLimited(status *models.UsageStatus) *RateLimitError {
	return &RateLimitError{ResetAt: status.ResetAt, Limit: status.Limit}
}

func (s *Service) session(ctx context.Context, userID, sessionID uuid.UUID) (*models.ChatSession, error) {
	session, err := s.chats.GetSession(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	return session, nil
}
