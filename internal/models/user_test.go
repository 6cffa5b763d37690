package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUser_DisplayName(t *testing.T) {
	t.Parallel()

	name := func(s string) *string { return &s }

	tests := []struct {
		name string
		user User
		want string
	}{
		{name: "provider name", user: User{Email: "sam@example.com", Name: name("Sam Saver")}, want: "Sam Saver"},
		{name: "blank provider name", user: User{Email: "sam@example.com", Name: name("  ")}, want: "sam"},
		{name: "no provider name", user: User{Email: "sam@example.com"}, want: "sam"},
		{name: "email without domain", user: User{Email: "sam"}, want: "sam"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUser_Profile(t *testing.T) {
	t.Parallel()

	subject := "auth0|123"
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	user := User{ID: uuid.New(), Email: "sam@example.com", ProviderID: &subject, EmailVerified: true, CreatedAt: created}

	profile := user.Profile()

	if profile.ID != user.ID || profile.Email != user.Email {
		t.Errorf("Expected identity copied, got %+v", profile)
	}
	if !profile.EmailVerified {
		t.Error("Expected email_verified copied")
	}
	if !profile.MemberSince.Equal(created) {
		t.Errorf("Expected member_since %v, got %v", created, profile.MemberSince)
	}
}
