package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
)

// InsightRepository stores generated insights. At most one batch per user is active.
type InsightRepository struct {
	db *DB
}

// NewInsightRepository creates a new insight repository
func NewInsightRepository(db *DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// GetActive returns the user's active insights ordered by priority
func (r *InsightRepository) GetActive(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error) {
	query := `
		SELECT id, user_id, category, title, body, priority, generated_at
		FROM insight_cache
		WHERE user_id = $1 AND invalidated_at IS NULL
		ORDER BY priority ASC, generated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}
	defer closeRows(rows)

	entries := make([]*models.InsightCacheEntry, 0)
	for rows.Next() {
		e := &models.InsightCacheEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Category, &e.Title, &e.Body, &e.Priority, &e.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating insights: %w", err)
	}
	return entries, nil
}

// LatestGeneratedAt returns when the user's active batch was generated, or nil if there is none
func (r *InsightRepository) LatestGeneratedAt(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(generated_at) FROM insight_cache WHERE user_id = $1 AND invalidated_at IS NULL`,
		userID,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest insight time: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

// ReplaceActive invalidates the user's active insights and inserts entries as the new
// active batch. Both steps share one transaction, serialised per user by an advisory lock,
// so concurrent regenerations never leave two active batches.
func (r *InsightRepository) ReplaceActive(ctx context.Context, userID uuid.UUID, entries []*models.InsightCacheEntry, now time.Time) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID.String()); err != nil {
			return fmt.Errorf("failed to lock insights: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE insight_cache SET invalidated_at = $2 WHERE user_id = $1 AND invalidated_at IS NULL`,
			userID, now,
		); err != nil {
			return fmt.Errorf("failed to invalidate insights: %w", err)
		}

		insert := `
			INSERT INTO insight_cache (id, user_id, category, title, body, priority, generated_at, snapshot)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for _, e := range entries {
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			e.UserID = userID
			e.GeneratedAt = now
			if _, err := tx.ExecContext(ctx, insert, e.ID, e.UserID, e.Category, e.Title, e.Body,
				e.Priority, e.GeneratedAt, nullableJSON(e.Snapshot)); err != nil {
				return fmt.Errorf("failed to insert insight: %w", err)
			}
		}
		return nil
	})
}
