package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/benvon/finance-advisor/internal/models"
	"github.com/google/uuid"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, provider_id, name, email_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var providerID, name sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &providerID, &name, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if providerID.Valid {
		u.ProviderID = &providerID.String
	}
	if name.Valid {
		u.Name = &name.String
	}
	return u, nil
}

// UpsertFromClaims returns the user identified by the token subject, creating the row on
// first sight and refreshing email and name when the identity provider reports new values.
func (r *UserRepository) UpsertFromClaims(ctx context.Context, claims *models.JWTClaims) (*models.User, error) {
	if claims == nil || claims.Sub == "" {
		return nil, fmt.Errorf("claims missing subject")
	}

	var name any
	if claims.Name != "" {
		name = claims.Name
	}

	query := `
		INSERT INTO users (id, email, provider_id, name, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (provider_id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = COALESCE(EXCLUDED.name, users.name),
		    updated_at = CASE
		        WHEN users.email IS DISTINCT FROM EXCLUDED.email
		          OR (EXCLUDED.name IS NOT NULL AND users.name IS DISTINCT FROM EXCLUDED.name)
		        THEN NOW() ELSE users.updated_at END
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, uuid.New(), claims.Email, claims.Sub, name))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return u, nil
}

// Delete deletes a user by ID. Sessions, messages, goals and insights cascade.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}
