package ai

import (
	"errors"
	"testing"

	"github.com/benvon/finance-advisor/internal/logger"
)

func TestProviderRegistry(t *testing.T) {
	t.Parallel()

	registry := DefaultRegistry()
	names := registry.Names()
	if len(names) != 2 || names[0] != "gemini" || names[1] != "openai" {
		t.Fatalf("Expected [gemini openai], got %v", names)
	}

	tests := []struct {
		name     string
		provider string
		cfg      ProviderConfig
		validate func(*testing.T, ModelProvider, error)
	}{
		{
			name:     "unknown provider",
			provider: "llama",
			validate: func(t *testing.T, _ ModelProvider, err error) {
				var notFound *ErrProviderNotFound
				if !errors.As(err, &notFound) {
					t.Fatalf("Expected ErrProviderNotFound, got %v", err)
				}
				if len(notFound.Available) != 2 || notFound.Available[0] != "gemini" {
					t.Errorf("Expected available providers listed, got %v", notFound.Available)
				}
			},
		},
		{
			name:     "openai without key",
			provider: "openai",
			validate: func(t *testing.T, _ ModelProvider, err error) {
				if err == nil {
					t.Error("Expected error for missing api key")
				}
			},
		},
		{
			name:     "openai with key",
			provider: "openai",
			cfg:      ProviderConfig{APIKey: "sk-test"},
			validate: func(t *testing.T, p ModelProvider, err error) {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				if p.Name() != "openai" {
					t.Errorf("Expected openai, got %s", p.Name())
				}
			},
		},
		{
			name:     "gemini without credentials",
			provider: "gemini",
			validate: func(t *testing.T, _ ModelProvider, err error) {
				if err == nil {
					t.Error("Expected error for missing gemini credentials")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := registry.GetProvider(tt.provider, tt.cfg)
			tt.validate(t, p, err)
		})
	}
}

func TestSanitizePrompt(t *testing.T) {
	t.Parallel()

	long := make([]byte, logger.MaxPreviewLength+50)
	for i := range long {
		long[i] = 'a'
	}

	if got := SanitizePrompt("hi\x00there\x1b", false); got != "hithere" {
		t.Errorf("Expected control characters removed, got %q", got)
	}
	if got := SanitizePrompt(string(long), false); len(got) != logger.MaxPreviewLength+3 {
		t.Errorf("Expected truncated preview of %d bytes, got %d", logger.MaxPreviewLength+3, len(got))
	}
	if got := SanitizeAPIKey("sk-abcdefghijkl"); got != "sk-a"+RedactedValue+"ijkl" {
		t.Errorf("Expected redacted key, got %q", got)
	}
}
