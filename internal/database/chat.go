package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
)

// ChatRepository handles chat sessions and their messages
type ChatRepository struct {
	db *DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateSession creates a new chat session
func (r *ChatRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING created_at, updated_at
	`
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	err := r.db.QueryRowContext(ctx, query, session.ID, session.UserID, session.Title, time.Now().UTC()).
		Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

// GetSession returns a session only if it belongs to userID. A session owned by someone
// else is reported as ErrNotFound.
func (r *ChatRepository) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.ChatSession, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE id = $1 AND user_id = $2
	`
	s := &models.ChatSession{}
	err := r.db.QueryRowContext(ctx, query, sessionID, userID).
		Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return s, nil
}

// ListSessions returns a user's sessions, most recently active first
func (r *ChatRepository) ListSessions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.ChatSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer closeRows(rows)

	sessions := make([]*models.ChatSession, 0)
	for rows.Next() {
		s := &models.ChatSession{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and, by cascade, its messages
func (r *ChatRepository) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chat session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// AppendMessage inserts a message and bumps the owning session's updated_at in the same
// transaction, so a session is never newer or older than its last message.
func (r *ChatRepository) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO chat_messages (id, session_id, role, content, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, clock_timestamp())
			RETURNING created_at
		`, msg.ID, msg.SessionID, msg.Role, msg.Content, nullableJSON(msg.Metadata)).Scan(&msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = $2 WHERE id = $1`, msg.SessionID, msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to touch chat session: %w", err)
		}
		return nil
	})
}

// RecentMessages returns up to limit of the newest messages in a session, oldest first
func (r *ChatRepository) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, metadata, created_at
		FROM (
			SELECT id, session_id, role, content, metadata, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer closeRows(rows)

	messages := make([]*models.ChatMessage, 0, limit)
	for rows.Next() {
		m := &models.ChatMessage{}
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		if len(metadata) > 0 {
			m.Metadata = metadata
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}
	return messages, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
