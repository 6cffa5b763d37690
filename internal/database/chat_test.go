package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRepository_GetSession_NotOwned(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	userID, sessionID := uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM chat_sessions`)).
		WithArgs(sessionID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "created_at", "updated_at"}))

	_, err := NewChatRepository(db).GetSession(context.Background(), userID, sessionID)
	assert.True(t, errors.Is(err, ErrNotFound), "Expected ErrNotFound, got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatRepository_AppendMessage_TouchesSession(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	sessionID := uuid.New()
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chat_messages`)).
		WithArgs(sqlmock.AnyArg(), sessionID, models.MessageRoleUser, "hello", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chat_sessions SET updated_at = $2 WHERE id = $1`)).
		WithArgs(sessionID, created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg := &models.ChatMessage{SessionID: sessionID, Role: models.MessageRoleUser, Content: "hello"}
	require.NoError(t, NewChatRepository(db).AppendMessage(context.Background(), msg))
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, created, msg.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatRepository_RecentMessages_OldestFirst(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	sessionID := uuid.New()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "session_id", "role", "content", "metadata", "created_at"}).
		AddRow(uuid.NewString(), sessionID.String(), "user", "first", nil, base).
		AddRow(uuid.NewString(), sessionID.String(), "assistant", "second", []byte(`{"model":"x"}`), base.Add(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at ASC`)).
		WithArgs(sessionID, 20).
		WillReturnRows(rows)

	got, err := NewChatRepository(db).RecentMessages(context.Background(), sessionID, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Nil(t, got[0].Metadata)
	assert.JSONEq(t, `{"model":"x"}`, string(got[1].Metadata))
	assert.NoError(t, mock.ExpectationsWereMet())
}
