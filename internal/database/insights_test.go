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

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewFromSQL(sqlDB), mock
}

func TestInsightRepository_ReplaceActive(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []*models.InsightCacheEntry{
		{Category: models.InsightCategorySpending, Title: "Dining up", Body: "b1", Priority: 1, Snapshot: []byte(`{"a":1}`)},
		{Category: models.InsightCategorySavings, Title: "Save more", Body: "b2", Priority: 2, Snapshot: []byte(`{"a":1}`)},
	}

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr bool
	}{
		{
			name: "invalidates then inserts in one transaction",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
					WithArgs(userID.String()).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE insight_cache SET invalidated_at = $2`)).
					WithArgs(userID, now).WillReturnResult(sqlmock.NewResult(0, 3))
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO insight_cache`)).
					WithArgs(sqlmock.AnyArg(), userID, models.InsightCategorySpending, "Dining up", "b1", 1, now, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO insight_cache`)).
					WithArgs(sqlmock.AnyArg(), userID, models.InsightCategorySavings, "Save more", "b2", 2, now, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "insert failure rolls back the invalidation",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock`)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE insight_cache`)).WillReturnResult(sqlmock.NewResult(0, 3))
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO insight_cache`)).WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db, mock := newMockDB(t)
			tt.setup(mock)

			batch := make([]*models.InsightCacheEntry, len(entries))
			for i, e := range entries {
				c := *e
				batch[i] = &c
			}

			err := NewInsightRepository(db).ReplaceActive(context.Background(), userID, batch, now)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				for _, e := range batch {
					assert.NotEqual(t, uuid.Nil, e.ID)
					assert.Equal(t, now, e.GeneratedAt)
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInsightRepository_GetActive(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	userID := uuid.New()
	generated := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "category", "title", "body", "priority", "generated_at"}).
		AddRow(uuid.NewString(), userID.String(), "spending", "First", "b", 1, generated).
		AddRow(uuid.NewString(), userID.String(), "goal", "Second", "b", 2, generated)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND invalidated_at IS NULL`)).
		WithArgs(userID).WillReturnRows(rows)

	got, err := NewInsightRepository(db).GetActive(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "First", got[0].Title)
	assert.True(t, got[0].IsActive())
	assert.Equal(t, models.InsightCategoryGoal, got[1].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}
