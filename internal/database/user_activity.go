package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserActivityRepository tracks when users last called the API
type UserActivityRepository struct {
	db *DB
}

// NewUserActivityRepository creates a new user activity repository
func NewUserActivityRepository(db *DB) *UserActivityRepository {
	return &UserActivityRepository{db: db}
}

// UpdateLastInteraction records an API call by the user
func (r *UserActivityRepository) UpdateLastInteraction(ctx context.Context, userID uuid.UUID) error {
	query := `
		INSERT INTO user_activity (user_id, last_api_interaction, created_at, updated_at)
		VALUES ($1, $2, $2, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET last_api_interaction = EXCLUDED.last_api_interaction,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update last interaction: %w", err)
	}
	return nil
}

// UsersNeedingInsightRefresh returns users active since activeSince whose active insight
// batch is missing or was generated before staleBefore
func (r *UserActivityRepository) UsersNeedingInsightRefresh(ctx context.Context, activeSince, staleBefore time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT a.user_id
		FROM user_activity a
		LEFT JOIN (
			SELECT user_id, MAX(generated_at) AS generated_at
			FROM insight_cache
			WHERE invalidated_at IS NULL
			GROUP BY user_id
		) i ON i.user_id = a.user_id
		WHERE a.last_api_interaction >= $1
		  AND (i.generated_at IS NULL OR i.generated_at < $2)
		ORDER BY a.last_api_interaction DESC
	`
	rows, err := r.db.QueryContext(ctx, query, activeSince, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query users needing refresh: %w", err)
	}
	defer closeRows(rows)

	var userIDs []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return userIDs, nil
}
