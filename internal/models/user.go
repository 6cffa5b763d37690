package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account created on first sign-in from the identity provider's claims
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	ProviderID    *string   `json:"provider_id,omitempty"`
	Name          *string   `json:"name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserProfile is what the API reveals about the caller. The provider subject stays
// server side.
type UserProfile struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	EmailVerified bool      `json:"email_verified"`
	MemberSince   time.Time `json:"member_since"`
}

// DisplayName is the provider name when set, otherwise the local part of the email
func (u *User) DisplayName() string {
	if u.Name != nil {
		if name := strings.TrimSpace(*u.Name); name != "" {
			return name
		}
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Profile builds the caller-facing view of u
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName(),
		EmailVerified: u.EmailVerified,
		MemberSince:   u.CreatedAt,
	}
}

// UserActivity tracks when a user last called the API. The insight scheduler only
// refreshes insights for users seen recently.
type UserActivity struct {
	UserID             uuid.UUID `json:"user_id"`
	LastAPIInteraction time.Time `json:"last_api_interaction"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
